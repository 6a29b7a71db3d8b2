package helpers

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// Date formats the timestamp in the provided layout (defaults to 2006-01-02 15:04 MST).
func Date(ts time.Time, layout string) string {
	if ts.IsZero() {
		return ""
	}
	if layout == "" {
		layout = "2006-01-02 15:04 MST"
	}
	return ts.In(time.Local).Format(layout)
}

// Relative returns a coarse "in 5m" / "5m ago" string measured from now.
func Relative(ts, now time.Time) string {
	if ts.IsZero() {
		return ""
	}
	diff := ts.Sub(now)
	future := diff > 0
	if !future {
		diff = -diff
	}

	var span string
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		span = fmt.Sprintf("%dm", int(diff.Minutes()))
	case diff < 24*time.Hour:
		span = fmt.Sprintf("%dh", int(diff.Hours()))
	default:
		return ts.Format("2006-01-02")
	}
	if future {
		return "in " + span
	}
	return span + " ago"
}

// Milliseconds renders a duration as whole milliseconds for data attributes.
func Milliseconds(d time.Duration) int64 {
	if d < 0 {
		return 0
	}
	return d.Milliseconds()
}

// RefreshSeconds rounds a delay up to whole seconds as required by the
// Refresh header and meta refresh, which do not accept fractions everywhere.
func RefreshSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

// ToastClass maps toast tones to stylesheet classes.
func ToastClass(tone string) string {
	switch tone {
	case "success", "danger":
		return "toast toast--" + tone
	default:
		return "toast toast--info"
	}
}

// BadgeClass maps semantic tones to stylesheet classes.
func BadgeClass(tone string) string {
	switch tone {
	case "success", "warning", "danger":
		return "badge badge--" + tone
	default:
		return "badge"
	}
}

// TextComponent returns a templ component that renders plain text.
func TextComponent(value string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, templ.EscapeString(value))
		return err
	})
}
