// Package auth renders the login, home and placeholder pages.
package auth

import (
	"context"
	"embed"
	"html/template"
	"io"
	"time"

	"github.com/a-h/templ"

	"github.com/Santhosh-1218/VIADOCS/internal/portal/templates/helpers"
)

//go:embed html/*.html
var files embed.FS

var pages = template.Must(template.New("auth").Funcs(template.FuncMap{
	"toastClass":     helpers.ToastClass,
	"badgeClass":     helpers.BadgeClass,
	"millis":         helpers.Milliseconds,
	"refreshSeconds": helpers.RefreshSeconds,
	"date":           helpers.Date,
	"relative":       helpers.Relative,
	"remaining": func(expires, now time.Time) time.Duration {
		if expires.IsZero() || !expires.After(now) {
			return 0
		}
		return expires.Sub(now).Round(time.Minute)
	},
}).ParseFS(files, "html/*.html"))

func render(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return pages.ExecuteTemplate(w, name, data)
	})
}

// LoginPage renders the full login document.
func LoginPage(data LoginPageData) templ.Component {
	if data.Title == "" {
		data.Title = "Sign in"
	}
	return render("login_page", data)
}

// LoginForm renders only the form region, for htmx swaps.
func LoginForm(data LoginPageData) templ.Component {
	return render("login_form", data)
}

// HomePage renders the signed-in landing page.
func HomePage(data HomePageData) templ.Component {
	if data.Title == "" {
		data.Title = "Home"
	}
	if data.Now.IsZero() {
		data.Now = time.Now()
	}
	return render("home_page", data)
}

// InfoPage renders a simple placeholder page.
func InfoPage(data InfoPageData) templ.Component {
	if data.Title == "" {
		data.Title = data.Heading
	}
	return render("info_page", data)
}
