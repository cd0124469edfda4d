/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"

	"github.com/Seednode/yardbox/internal/investigation"
)

const maxBodyBytes = 64 << 10

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return investigation.Validation("Malformed request body.")
	}
	return nil
}

func codeParam(p httprouter.Params) string {
	return investigation.NormalizeCode(p.ByName("code"))
}

// playerHandle is an API handler that runs on behalf of the player named in
// the bearer token.
type playerHandle func(w http.ResponseWriter, r *http.Request, p httprouter.Params, playerID string)

func (s *server) authed(h playerHandle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		playerID, err := s.issuer.FromRequest(r)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		h(w, r, p, playerID)
	}
}

func (s *server) registerAPI(mux *httprouter.Router) {
	api := s.cfg.prefix + "/api"
	inv := api + "/investigations/:code"

	mux.POST(api+"/session", s.write("session", s.serveSession()))
	mux.POST(api+"/investigations", s.write("create_investigation", s.serveCreateInvestigation()))
	mux.GET(inv, s.instrument("investigation", s.serveInvestigation()))

	mux.GET(inv+"/players", s.instrument("players", s.servePlayers()))
	mux.PUT(inv+"/players/me", s.write("join", s.authed(s.serveJoin())))
	mux.PUT(inv+"/players/me/alias", s.write("alias", s.authed(s.serveAlias())))
	mux.PUT(inv+"/players/me/identity", s.write("identity", s.authed(s.serveIdentity())))
	mux.PUT(inv+"/players/me/evidence", s.write("evidence", s.authed(s.serveEvidence())))
	mux.PUT(inv+"/players/me/notebook", s.write("notebook", s.authed(s.serveNotebook())))

	mux.GET(inv+"/case-file", s.instrument("case_file", s.serveCaseFile()))
	mux.PUT(inv+"/case-file", s.write("lock_case_file", s.authed(s.serveLockCaseFile())))

	mux.GET(inv+"/accusations", s.instrument("accusations", s.serveAccusations()))
	mux.POST(inv+"/accusations", s.write("accuse", s.authed(s.serveAccuse())))

	mux.GET(inv+"/feed", s.serveFeed())
}

func (s *server) serveSession() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			PlayerID string `json:"player_id"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		playerID := strings.TrimSpace(body.PlayerID)
		if playerID == "" {
			writeError(s.cfg, w, r, investigation.Validation("A player id is required."))
			return
		}

		raw, err := s.issuer.Issue(playerID)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		writeJSON(s.cfg, w, http.StatusOK, map[string]string{
			"token":     raw,
			"player_id": playerID,
		})
	}
}

func (s *server) serveCreateInvestigation() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			Code string `json:"code"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		inv, err := s.store.CreateInvestigation(r.Context(), investigation.NormalizeCode(body.Code))
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		logf(s.cfg, "GAMES: Created investigation %s", inv.Code)

		writeJSON(s.cfg, w, http.StatusCreated, inv)
	}
}

func (s *server) serveInvestigation() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		inv, err := s.store.GetInvestigation(r.Context(), codeParam(p))
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		writeJSON(s.cfg, w, http.StatusOK, inv)
	}
}

func (s *server) servePlayers() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		players, err := s.store.ListPlayers(r.Context(), codeParam(p))
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		if players == nil {
			players = []investigation.Player{}
		}
		writeJSON(s.cfg, w, http.StatusOK, players)
	}
}

func (s *server) serveJoin() playerHandle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, playerID string) {
		player, err := s.store.UpsertPlayer(r.Context(), codeParam(p), playerID)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		writeJSON(s.cfg, w, http.StatusOK, player)
	}
}

func (s *server) serveAlias() playerHandle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, playerID string) {
		var body struct {
			Title string `json:"alias_title"`
			Color string `json:"alias_color"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		player, err := s.store.LockAlias(r.Context(), codeParam(p), playerID, body.Title, body.Color)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		writeJSON(s.cfg, w, http.StatusOK, player)
	}
}

func (s *server) serveIdentity() playerHandle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, playerID string) {
		var body struct {
			Identity string `json:"identity"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		player, err := s.store.UpdateIdentity(r.Context(), codeParam(p), playerID, body.Identity)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		writeJSON(s.cfg, w, http.StatusOK, player)
	}
}

func (s *server) serveEvidence() playerHandle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, playerID string) {
		var body struct {
			Evidence []investigation.EvidenceItem `json:"evidence"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		player, err := s.store.SubmitEvidence(r.Context(), codeParam(p), playerID, body.Evidence)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		writeJSON(s.cfg, w, http.StatusOK, player)
	}
}

func (s *server) serveNotebook() playerHandle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, playerID string) {
		var body struct {
			Checks []investigation.EvidenceItem `json:"notebook_checks"`
		}
		if err := decodeBody(w, r, &body); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		player, err := s.store.UpdateNotebookChecks(r.Context(), codeParam(p), playerID, body.Checks)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		writeJSON(s.cfg, w, http.StatusOK, player)
	}
}

func (s *server) serveCaseFile() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		cf, err := s.store.GetCaseFile(r.Context(), codeParam(p))
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		writeJSON(s.cfg, w, http.StatusOK, cf)
	}
}

func (s *server) serveLockCaseFile() playerHandle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, _ string) {
		var ifVersion int64
		if raw := r.URL.Query().Get("if_version"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v < 0 {
				writeError(s.cfg, w, r, investigation.Validation("Invalid if_version."))
				return
			}
			ifVersion = v
		}

		var cf investigation.CaseFile
		if err := decodeBody(w, r, &cf); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		cf.InvestigationCode = codeParam(p)

		out, err := s.store.UpsertCaseFile(r.Context(), cf, ifVersion)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		writeJSON(s.cfg, w, http.StatusOK, out)
	}
}

func (s *server) serveAccusations() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				writeError(s.cfg, w, r, investigation.Validation("Invalid limit."))
				return
			}
			limit = v
		}

		list, err := s.store.ListAccusations(r.Context(), codeParam(p), limit)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		if list == nil {
			list = []investigation.Accusation{}
		}
		writeJSON(s.cfg, w, http.StatusOK, list)
	}
}

func (s *server) serveAccuse() playerHandle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params, playerID string) {
		var a investigation.Accusation
		if err := decodeBody(w, r, &a); err != nil {
			writeError(s.cfg, w, r, err)
			return
		}
		a.InvestigationCode = codeParam(p)
		a.AccuserPlayerID = playerID

		out, err := s.store.CreateAccusation(r.Context(), a)
		if err != nil {
			writeError(s.cfg, w, r, err)
			return
		}

		logf(s.cfg, "GAMES: %s accused %q in %s (correct: %t)", playerID, out.AccusedAlias, out.InvestigationCode, out.IsCorrect)

		writeJSON(s.cfg, w, http.StatusCreated, out)
	}
}
