package auth

import "time"

// Toast is a notification rendered into the toast region.
type Toast struct {
	Message string
	Tone    string
}

// Redirect describes a pending client-side navigation.
type Redirect struct {
	URL   string
	Delay time.Duration
}

// Chrome is shared page furniture.
type Chrome struct {
	Title       string
	Environment string
	Production  bool
	CSRFToken   string
	CSRFField   string
	Toasts      []Toast
	ToastTTL    time.Duration
	Redirect    *Redirect
}

// LoginPageData encapsulates rendering state for the login screen.
type LoginPageData struct {
	Chrome

	ViewID          string
	Email           string
	Password        string
	PasswordVisible bool
	Submitting      bool
	// NavigatingAway locks the form after a successful sign in.
	NavigatingAway bool
	// Notice is an informational line shown above the form, e.g. after sign out.
	Notice string

	LoginPath          string
	TogglePath         string
	SignupPath         string
	ForgotPasswordPath string
}

// HomePageData is the landing page for holders of a token.
type HomePageData struct {
	Chrome

	Subject    string
	Email      string
	ExpiresAt  time.Time
	Opaque     bool
	Now        time.Time
	LogoutPath string
}

// InfoPageData renders a placeholder for destinations served elsewhere.
type InfoPageData struct {
	Chrome

	Heading  string
	Message  string
	BackPath string
	BackText string
}
