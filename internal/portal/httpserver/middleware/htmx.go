package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

type htmxKey struct{}

// htmx request and response headers the portal reads or writes.
const (
	TriggerHeader  = "HX-Trigger"
	requestHeader  = "HX-Request"
	targetHeader   = "HX-Target"
	currentHeader  = "HX-Current-URL"
	redirectHeader = "HX-Redirect"
	reswapHeader   = "HX-Reswap"
)

// HTMXInfo describes an htmx-initiated request.
type HTMXInfo struct {
	IsHTMX     bool
	Target     string
	CurrentURL string
}

// HTMX marks htmx requests in the context. Login fragments and full pages
// share routes, so every response varies on HX-Request.
func HTMX() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", requestHeader)

			info := HTMXInfo{IsHTMX: strings.EqualFold(r.Header.Get(requestHeader), "true")}
			if info.IsHTMX {
				info.Target = r.Header.Get(targetHeader)
				info.CurrentURL = r.Header.Get(currentHeader)
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), htmxKey{}, info)))
		})
	}
}

// HTMXInfoFromContext returns the zero value outside the HTMX middleware.
func HTMXInfoFromContext(ctx context.Context) HTMXInfo {
	info, _ := ctx.Value(htmxKey{}).(HTMXInfo)
	return info
}

func IsHTMXRequest(ctx context.Context) bool {
	return HTMXInfoFromContext(ctx).IsHTMX
}

// Redirect sends the client to target. htmx requests get HX-Redirect with
// htmxStatus so the browser performs a full navigation; everything else gets
// a Location redirect with status.
func Redirect(w http.ResponseWriter, r *http.Request, target string, status, htmxStatus int) {
	if !IsHTMXRequest(r.Context()) {
		http.Redirect(w, r, target, status)
		return
	}
	w.Header().Set(redirectHeader, target)
	if htmxStatus == http.StatusNoContent {
		w.WriteHeader(htmxStatus)
		return
	}
	http.Error(w, http.StatusText(htmxStatus), htmxStatus)
}

// SkipSwap tells htmx to leave the page untouched for this response.
func SkipSwap(w http.ResponseWriter) {
	w.Header().Set(reswapHeader, "none")
}

// AddTrigger merges event into the HX-Trigger header, keeping events set earlier
// in the request. Must be called before the header is written.
func AddTrigger(w http.ResponseWriter, event string, payload any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return fmt.Errorf("htmx trigger: empty event name")
	}

	events, err := parseTriggers(w.Header().Get(TriggerHeader))
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("htmx trigger %q: %w", event, err)
	}
	events[event] = encoded

	header, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("htmx trigger header: %w", err)
	}
	w.Header().Set(TriggerHeader, string(header))
	return nil
}

// parseTriggers accepts both header forms htmx understands: a JSON object of
// event payloads or a comma separated list of bare event names.
func parseTriggers(existing string) (map[string]json.RawMessage, error) {
	events := map[string]json.RawMessage{}
	existing = strings.TrimSpace(existing)
	if existing == "" {
		return events, nil
	}
	if strings.HasPrefix(existing, "{") {
		if err := json.Unmarshal([]byte(existing), &events); err != nil {
			return nil, fmt.Errorf("htmx trigger header: %w", err)
		}
		return events, nil
	}
	for _, name := range strings.Split(existing, ",") {
		if name = strings.TrimSpace(name); name != "" {
			events[name] = json.RawMessage("null")
		}
	}
	return events, nil
}
