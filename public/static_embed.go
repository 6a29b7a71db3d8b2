// Package public embeds the portal's browser assets.
package public

import (
	"embed"
	"io/fs"
	"net/http"
)

// URLPrefix is where the assets are mounted on the router.
const URLPrefix = "/public/static/"

//go:embed static/login.js static/portal.css static/logo.svg
var static embed.FS

// StaticFS exposes the embedded assets rooted at the static directory.
func StaticFS() (fs.FS, error) {
	return fs.Sub(static, "static")
}

// Handler serves the assets under URLPrefix.
func Handler() (http.Handler, error) {
	assets, err := StaticFS()
	if err != nil {
		return nil, err
	}
	return http.StripPrefix(URLPrefix, http.FileServer(http.FS(assets))), nil
}
