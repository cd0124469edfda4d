/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seednode/yardbox/internal/feed"
	"github.com/Seednode/yardbox/internal/investigation"
)

const server = "http://yard.test"

func newClient(t *testing.T) *Client {
	t.Helper()

	c, err := New(server + "/")
	require.NoError(t, err)
	return c
}

func jsonResponder(status int, body any) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		return httpmock.NewJsonResponse(status, body)
	}
}

func TestNewRequiresServer(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, investigation.ErrNotConfigured)

	_, err = New("ftp://yard.test")
	assert.Error(t, err)
}

func TestCreateInvestigationRetriesOnConflict(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	attempts := 0
	var codes []string
	httpmock.RegisterResponder("POST", server+"/api/investigations",
		func(req *http.Request) (*http.Response, error) {
			attempts++

			var body map[string]string
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			codes = append(codes, body["code"])

			if attempts < 3 {
				return httpmock.NewJsonResponse(http.StatusConflict, ErrorBody{
					Error: "Investigation code already in use.", Code: investigation.UniqueViolationCode, Field: "code",
				})
			}
			return httpmock.NewJsonResponse(http.StatusCreated, investigation.Investigation{Code: body["code"]})
		})

	inv, err := newClient(t).CreateInvestigation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, codes[2], inv.Code)
	for _, code := range codes {
		assert.Len(t, code, investigation.DefaultCodeLength)
	}
}

func TestCreateInvestigationGivesUp(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", server+"/api/investigations",
		jsonResponder(http.StatusConflict, ErrorBody{Error: "taken", Code: investigation.UniqueViolationCode}))

	_, err := newClient(t).CreateInvestigation(context.Background())
	require.ErrorIs(t, err, investigation.ErrConflict)
	assert.Equal(t, investigation.MaxCreateAttempts, httpmock.GetTotalCallCount())
}

func TestCreateInvestigationStopsOnOtherErrors(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", server+"/api/investigations",
		httpmock.NewStringResponder(http.StatusInternalServerError, "database is locked"))

	_, err := newClient(t).CreateInvestigation(context.Background())
	require.Error(t, err)
	assert.Equal(t, investigation.CategoryRemote, investigation.CategoryOf(err))
	assert.Equal(t, "database is locked", err.Error())
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestErrorsAreCategorized(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", server+"/api/investigations/ZZZZZ",
		jsonResponder(http.StatusNotFound, ErrorBody{Error: "Investigation not found.", Category: "not-found"}))
	httpmock.RegisterResponder("GET", server+"/api/investigations/ABCDE/case-file",
		jsonResponder(http.StatusNotFound, ErrorBody{Error: "Case file not found."}))

	c := newClient(t)

	_, err := c.FetchInvestigation(context.Background(), "ZZZZZ")
	require.ErrorIs(t, err, investigation.ErrNotFound)
	assert.Equal(t, "Investigation not found.", investigation.StatusText(err))

	_, err = c.FetchCaseFile(context.Background(), "ABCDE")
	assert.ErrorIs(t, err, investigation.ErrNotFound)
}

func TestWritesUseSessionToken(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("POST", server+"/api/session",
		func(req *http.Request) (*http.Response, error) {
			var body map[string]string
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			return httpmock.NewJsonResponse(http.StatusOK, map[string]string{
				"token": "tok-" + body["player_id"], "player_id": body["player_id"],
			})
		})

	httpmock.RegisterResponder("PUT", server+"/api/investigations/ABCDE/players/me/alias",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Authorization") != "Bearer tok-me" {
				return httpmock.NewJsonResponse(http.StatusUnauthorized, ErrorBody{Error: "Missing session."})
			}
			var body map[string]string
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				return nil, err
			}
			if body["alias_color"] == "Gold" {
				return httpmock.NewJsonResponse(http.StatusConflict, ErrorBody{
					Error: "duplicate key value violates unique constraint", Code: investigation.UniqueViolationCode, Field: "alias_color",
				})
			}
			return httpmock.NewJsonResponse(http.StatusOK, investigation.Player{
				PlayerID: "me", AliasTitle: body["alias_title"], AliasColor: body["alias_color"], AliasLocked: true, Version: 2,
			})
		})

	c := newClient(t)
	ctx := context.Background()

	_, err := c.LockAlias(ctx, "ABCDE", "me", "Captain", "Gold")
	require.ErrorIs(t, err, investigation.ErrConflict)
	assert.Equal(t, "That color is already taken.", investigation.StatusText(err))

	p, err := c.LockAlias(ctx, "ABCDE", "me", "Captain", "Rose")
	require.NoError(t, err)
	assert.Equal(t, "Captain Rose", p.Alias())

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["POST "+server+"/api/session"])
}

func TestFetchAccusationsSendsLimit(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponderWithQuery("GET", server+"/api/investigations/ABCDE/accusations", "limit=5",
		jsonResponder(http.StatusOK, []investigation.Accusation{{ID: "a1"}}))
	httpmock.RegisterResponder("GET", server+"/api/investigations/ABCDE/accusations",
		jsonResponder(http.StatusOK, []investigation.Accusation{{ID: "a1"}, {ID: "a2"}}))

	c := newClient(t)

	list, err := c.FetchAccusations(context.Background(), "ABCDE", 5)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = c.FetchAccusations(context.Background(), "ABCDE", 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestUpsertCaseFileNeedsSession(t *testing.T) {
	c := newClient(t)

	_, err := c.UpsertCaseFile(context.Background(), investigation.CaseFile{InvestigationCode: "ABCDE"}, 0)
	assert.Equal(t, investigation.CategoryValidation, investigation.CategoryOf(err))
}

func TestSubscribeStreamsEvents(t *testing.T) {
	upgrader := websocket.Upgrader{}
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/investigations/ABCDE/feed" {
			http.Error(w, `{"error":"Investigation not found."}`, http.StatusNotFound)
			return
		}
		if r.URL.Query().Get("table") != string(feed.TablePlayers) {
			http.Error(w, "bad table", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(feed.PlayerEvent(feed.Insert, investigation.Player{ID: "row-1", InvestigationCode: "ABCDE", Version: 1}))

		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	defer close(release)

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.Subscribe(context.Background(), "ZZZZZ", feed.TablePlayers)
	require.ErrorIs(t, err, investigation.ErrNotFound)

	sub, err := c.Subscribe(context.Background(), "ABCDE", feed.TablePlayers)
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, feed.TablePlayers, ev.Table)
		require.NotNil(t, ev.Player)
		assert.Equal(t, "row-1", ev.Player.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("expected an event")
	}

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("events channel should close")
	}
}

func TestWebsocketURL(t *testing.T) {
	c, err := New("https://yard.test/base")
	require.NoError(t, err)

	got := c.endpoint(investigationPath("AB CD", "/feed"), nil)
	assert.True(t, strings.HasPrefix(got, "https://yard.test/base/api/investigations/AB%20CD/feed"), got)
}
