/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/Seednode/yardbox/internal/investigation"
)

const qrSize = 320

// baseURL derives the externally visible server URL, respecting TLS and
// X-Forwarded-Proto.
func baseURL(cfg *Config, r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + cfg.prefix
}

func inviteURL(cfg *Config, r *http.Request, code string) string {
	return baseURL(cfg, r) + "/investigation/" + code
}

func inviteCode(p httprouter.Params) (string, bool) {
	code := investigation.NormalizeCode(p.ByName("code"))
	return code, investigation.ValidJoinCode(code)
}

// serveInvite shows the join code of an investigation along with its QR code.
func serveInvite(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, ok := inviteCode(p)
		if !ok {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		var body strings.Builder
		body.WriteString(fmt.Sprintf("<h1>Investigation %s</h1>", html.EscapeString(code)))
		body.WriteString(fmt.Sprintf(`<img src="%s/investigation/%s/qr" width="%d" height="%d" alt="QR code">`,
			html.EscapeString(cfg.prefix), html.EscapeString(code), qrSize, qrSize))
		body.WriteString(fmt.Sprintf("<p>Join with <code>yardbox join %s --server %s</code></p>",
			html.EscapeString(code), html.EscapeString(baseURL(cfg, r))))

		io.WriteString(w, newPage("Investigation "+code, body.String()))
	}
}

// serveQR renders the invite link of an investigation as a PNG.
func serveQR(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		code, ok := inviteCode(p)
		if !ok {
			http.Error(w, "invalid investigation code", http.StatusBadRequest)
			return
		}

		png, err := qrcode.Encode(inviteURL(cfg, r, code), qrcode.Medium, qrSize)
		if err != nil {
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		securityHeaders(cfg, w)

		_, _ = w.Write(png)
	}
}

func registerInvite(cfg *Config, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/investigation/:code", serveInvite(cfg))
	mux.GET(cfg.prefix+"/investigation/:code/qr", serveQR(cfg))
}
