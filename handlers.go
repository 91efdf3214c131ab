/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Seednode/cnxns/api"
	"github.com/Seednode/cnxns/backend"
	"github.com/Seednode/cnxns/chain"
	"github.com/julienschmidt/httprouter"
)

const maxBodySize = 64 << 10

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any, errs chan<- error) int {
	data, err := json.Marshal(v)
	if err != nil {
		errs <- err

		status = http.StatusInternalServerError
		data = []byte(`{"error":"internal error"}`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	securityHeaders(cfg, w)
	w.WriteHeader(status)

	written, err := w.Write(data)
	if err != nil {
		errs <- err
	}

	return written
}

func readJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return err
	}
	if len(body) > maxBodySize {
		return errors.New("request body too large")
	}

	return json.Unmarshal(body, v)
}

func logAPI(cfg *Config, r *http.Request, name string, written int, startTime time.Time) {
	logf(cfg, "API: %s (%s) to %s in %s",
		name,
		humanReadableSize(int64(written)),
		realIP(r),
		time.Since(startTime).Round(time.Microsecond),
	)
}

func serveSearch(cfg *Config, b *backend.Backend, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if utf8.RuneCountInString(query) < chain.DefaultMinQueryLength {
			writeJSON(cfg, w, http.StatusOK, []api.Player{}, errs)

			return
		}

		players, err := b.Search(r.Context(), query)
		if err != nil {
			logf(cfg, "ERROR: %v", err)

			writeJSON(cfg, w, http.StatusInternalServerError, apiError{"Unable to search players"}, errs)

			return
		}

		written := writeJSON(cfg, w, http.StatusOK, players, errs)

		logAPI(cfg, r, "Search", written, startTime)
	}
}

func serveCheckConnection(cfg *Config, b *backend.Backend, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var req api.ConnectionRequest
		if err := readJSON(r, &req); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{"Invalid request body"}, errs)

			return
		}

		resp, err := b.CheckConnection(r.Context(), req)
		if err != nil {
			logf(cfg, "ERROR: %v", err)

			writeJSON(cfg, w, http.StatusInternalServerError, apiError{"Unable to check player connection"}, errs)

			return
		}

		written := writeJSON(cfg, w, http.StatusOK, resp, errs)

		logAPI(cfg, r, "Check connection", written, startTime)
	}
}

func serveRemovePlayer(cfg *Config, b *backend.Backend, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		var ids []string
		if err := readJSON(r, &ids); err != nil {
			writeJSON(cfg, w, http.StatusBadRequest, apiError{"Invalid request body"}, errs)

			return
		}

		resp, err := b.RemovePlayer(r.Context(), ids)
		if err != nil {
			logf(cfg, "ERROR: %v", err)

			writeJSON(cfg, w, http.StatusInternalServerError, apiError{"Unable to remove player"}, errs)

			return
		}

		written := writeJSON(cfg, w, http.StatusOK, resp, errs)

		logAPI(cfg, r, "Remove player", written, startTime)
	}
}

func serveCareer(cfg *Config, b *backend.Backend, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		career, err := b.Career(r.Context(), r.URL.Query().Get("player_id"))
		switch {
		case errors.Is(err, backend.ErrMissingPlayer):
			writeJSON(cfg, w, http.StatusBadRequest, apiError{"Missing player_id"}, errs)

			return
		case err != nil:
			logf(cfg, "ERROR: %v", err)

			writeJSON(cfg, w, http.StatusInternalServerError, apiError{"Unable to get career"}, errs)

			return
		}

		written := writeJSON(cfg, w, http.StatusOK, career, errs)

		logAPI(cfg, r, "Career", written, startTime)
	}
}

func serveChallenge(cfg *Config, b *backend.Backend, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		challenge, err := b.Challenge(r.Context())
		if err != nil {
			logf(cfg, "ERROR: %v", err)

			writeJSON(cfg, w, http.StatusServiceUnavailable, apiError{"Unable to get challenge players"}, errs)

			return
		}

		written := writeJSON(cfg, w, http.StatusOK, challenge, errs)

		logAPI(cfg, r, "Challenge", written, startTime)
	}
}

func registerAPIHandlers(cfg *Config, b *backend.Backend, mux *httprouter.Router, errs chan<- error) {
	mux.GET(cfg.prefix+"/api/search", serveSearch(cfg, b, errs))
	mux.POST(cfg.prefix+"/api/check-connection", serveCheckConnection(cfg, b, errs))
	mux.POST(cfg.prefix+"/api/remove-player", serveRemovePlayer(cfg, b, errs))
	mux.GET(cfg.prefix+"/api/career", serveCareer(cfg, b, errs))
	mux.GET(cfg.prefix+"/api/challenge", serveChallenge(cfg, b, errs))
}
