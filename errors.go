/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Seednode/yardbox/internal/investigation"
	"github.com/Seednode/yardbox/internal/token"
)

// errorBody mirrors backend.ErrorBody on the wire.
type errorBody struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Code     string `json:"code,omitempty"`
	Field    string `json:"field,omitempty"`
}

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body>%s</body></html>", body))

	return htmlBody.String()
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logf(cfg, "ERROR: Writing response: %v", err)
	}
}

// statusFor maps an error category onto an HTTP status code.
func statusFor(err error) int {
	if errors.Is(err, token.ErrMissing) || errors.Is(err, token.ErrInvalid) {
		return http.StatusUnauthorized
	}

	switch investigation.CategoryOf(err) {
	case investigation.CategoryValidation:
		return http.StatusBadRequest
	case investigation.CategoryNotFound:
		return http.StatusNotFound
	case investigation.CategoryConflict:
		return http.StatusConflict
	case investigation.CategoryConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(cfg *Config, w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	body := errorBody{Error: err.Error()}

	var e *investigation.Error
	switch {
	case status == http.StatusUnauthorized:
		body.Error = "Join the investigation first."
		body.Category = string(investigation.CategoryValidation)
	case errors.As(err, &e):
		body.Category = string(e.Category)
		body.Code = e.Code
		body.Field = e.Field
	default:
		body.Category = string(investigation.CategoryRemote)
	}

	if status >= http.StatusInternalServerError {
		logf(cfg, "ERROR: %s %s from %s: %v", r.Method, r.URL.Path, realIP(r), err)
	}

	writeJSON(cfg, w, status, body)
}
