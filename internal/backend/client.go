/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

// Package backend reaches the yardbox server over its JSON API and websocket
// change feed.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Seednode/yardbox/internal/investigation"
	"github.com/Seednode/yardbox/internal/reconciler"
)

const defaultTimeout = 10 * time.Second

// ErrorBody is the JSON error payload of the API.
type ErrorBody struct {
	Error    string `json:"error"`
	Category string `json:"category,omitempty"`
	Code     string `json:"code,omitempty"`
	Field    string `json:"field,omitempty"`
}

type Client struct {
	base   *url.URL
	http   *http.Client
	dialer *websocket.Dialer
	logger *slog.Logger

	mu       sync.Mutex
	token    string
	playerID string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

var _ reconciler.Backend = (*Client)(nil)

// New returns a client for the server at baseURL. An empty baseURL is a
// configuration error.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, investigation.ErrNotConfigured
	}

	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url must be http or https, got %q", baseURL)
	}

	c := &Client{
		base:   base,
		http:   &http.Client{Timeout: defaultTimeout},
		dialer: &websocket.Dialer{HandshakeTimeout: defaultTimeout},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

func investigationPath(code string, rest ...string) string {
	return "/api/investigations/" + code + strings.Join(rest, "")
}

// Session obtains a bearer token bound to playerID. Writes call it lazily.
func (c *Client) Session(ctx context.Context, playerID string) error {
	var out struct {
		Token    string `json:"token"`
		PlayerID string `json:"player_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/session", nil, map[string]string{"player_id": playerID}, &out, false); err != nil {
		return err
	}
	if out.Token == "" {
		return investigation.Remote(errors.New("server returned an empty session token"))
	}

	c.mu.Lock()
	c.token, c.playerID = out.Token, playerID
	c.mu.Unlock()

	return nil
}

func (c *Client) ensureSession(ctx context.Context, playerID string) error {
	c.mu.Lock()
	ok := c.token != "" && c.playerID == playerID
	c.mu.Unlock()

	if ok {
		return nil
	}
	return c.Session(ctx, playerID)
}

func (c *Client) bearer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// do performs one JSON request. Error responses are decoded into the
// categorized investigation errors.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any, auth bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.bearer())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return investigation.Remote(err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api request", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return investigation.Remote(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var body ErrorBody
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = resp.Status
		}
	}

	e := &investigation.Error{
		Category: investigation.ErrorCategory(body.Category),
		Code:     body.Code,
		Field:    body.Field,
		Message:  body.Error,
	}
	switch {
	case resp.StatusCode == http.StatusConflict || body.Code == investigation.UniqueViolationCode:
		e.Category = investigation.CategoryConflict
		if e.Code == "" {
			e.Code = investigation.UniqueViolationCode
		}
	case resp.StatusCode == http.StatusNotFound:
		e.Category = investigation.CategoryNotFound
	case e.Category == "":
		e.Category = investigation.CategoryRemote
	}
	return e
}

// CreateInvestigation registers a new investigation under a freshly
// generated code, retrying with a new code when one is already taken.
func (c *Client) CreateInvestigation(ctx context.Context) (investigation.Investigation, error) {
	var lastErr error
	for attempt := 0; attempt < investigation.MaxCreateAttempts; attempt++ {
		code, err := investigation.GenerateCode(investigation.DefaultCodeLength)
		if err != nil {
			return investigation.Investigation{}, err
		}

		var inv investigation.Investigation
		err = c.do(ctx, http.MethodPost, "/api/investigations", nil, map[string]string{"code": code}, &inv, false)
		if err == nil {
			return inv, nil
		}
		if !errors.Is(err, investigation.ErrConflict) {
			return investigation.Investigation{}, err
		}

		c.logger.Debug("investigation code taken, retrying", "code", code, "attempt", attempt+1)
		lastErr = err
	}
	return investigation.Investigation{}, fmt.Errorf("could not find a free investigation code: %w", lastErr)
}

func (c *Client) FetchInvestigation(ctx context.Context, code string) (investigation.Investigation, error) {
	var inv investigation.Investigation
	err := c.do(ctx, http.MethodGet, investigationPath(code), nil, nil, &inv, false)
	return inv, err
}

func (c *Client) UpsertPlayer(ctx context.Context, code, playerID string) (investigation.Player, error) {
	return c.writePlayer(ctx, code, playerID, "", struct{}{})
}

func (c *Client) FetchPlayers(ctx context.Context, code string) ([]investigation.Player, error) {
	var players []investigation.Player
	err := c.do(ctx, http.MethodGet, investigationPath(code, "/players"), nil, nil, &players, false)
	return players, err
}

func (c *Client) FetchCaseFile(ctx context.Context, code string) (investigation.CaseFile, error) {
	var cf investigation.CaseFile
	err := c.do(ctx, http.MethodGet, investigationPath(code, "/case-file"), nil, nil, &cf, false)
	return cf, err
}

func (c *Client) FetchAccusations(ctx context.Context, code string, limit int) ([]investigation.Accusation, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var list []investigation.Accusation
	err := c.do(ctx, http.MethodGet, investigationPath(code, "/accusations"), query, nil, &list, false)
	return list, err
}

func (c *Client) writePlayer(ctx context.Context, code, playerID, suffix string, body any) (investigation.Player, error) {
	if err := c.ensureSession(ctx, playerID); err != nil {
		return investigation.Player{}, err
	}
	var p investigation.Player
	err := c.do(ctx, http.MethodPut, investigationPath(code, "/players/me", suffix), nil, body, &p, true)
	return p, err
}

func (c *Client) LockAlias(ctx context.Context, code, playerID, title, color string) (investigation.Player, error) {
	return c.writePlayer(ctx, code, playerID, "/alias", map[string]string{
		"alias_title": title,
		"alias_color": color,
	})
}

func (c *Client) UpdateIdentity(ctx context.Context, code, playerID, identity string) (investigation.Player, error) {
	return c.writePlayer(ctx, code, playerID, "/identity", map[string]string{"identity": identity})
}

func (c *Client) SubmitEvidence(ctx context.Context, code, playerID string, evidence []investigation.EvidenceItem) (investigation.Player, error) {
	return c.writePlayer(ctx, code, playerID, "/evidence", map[string]any{"evidence": evidence})
}

func (c *Client) UpdateNotebookChecks(ctx context.Context, code, playerID string, checks []investigation.EvidenceItem) (investigation.Player, error) {
	if checks == nil {
		checks = []investigation.EvidenceItem{}
	}
	return c.writePlayer(ctx, code, playerID, "/notebook", map[string]any{"notebook_checks": checks})
}

func (c *Client) UpsertCaseFile(ctx context.Context, cf investigation.CaseFile, ifVersion int64) (investigation.CaseFile, error) {
	if c.bearer() == "" {
		return investigation.CaseFile{}, investigation.Validation("Join the investigation first.")
	}

	query := url.Values{}
	if ifVersion > 0 {
		query.Set("if_version", strconv.FormatInt(ifVersion, 10))
	}
	var out investigation.CaseFile
	err := c.do(ctx, http.MethodPut, investigationPath(cf.InvestigationCode, "/case-file"), query, cf, &out, true)
	return out, err
}

func (c *Client) CreateAccusation(ctx context.Context, a investigation.Accusation) (investigation.Accusation, error) {
	if err := c.ensureSession(ctx, a.AccuserPlayerID); err != nil {
		return investigation.Accusation{}, err
	}
	var out investigation.Accusation
	err := c.do(ctx, http.MethodPost, investigationPath(a.InvestigationCode, "/accusations"), nil, a, &out, true)
	return out, err
}
