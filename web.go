package main

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// Server ties the protocol engine to the HTTP/WebSocket surface a local UI
// talks to.
type Server struct {
	cfg      AppConfig
	session  *Session
	game     *GameClient
	store    *SecretStore
	reader   *Reader
	night    *NightLog
	actions  *Actions
	hub      *Hub
	narrator *Narrator
}

// stateResponse is the GET /api/state payload: the latest snapshot plus the
// locally derived and cached extras that do not live on chain.
type stateResponse struct {
	Snapshot   *ChainSnapshot    `json:"snapshot"`
	Victim     uint8             `json:"victim"`
	Commitment *StoredCommitment `json:"commitment,omitempty"`
	SeerResult *StoredSeerResult `json:"seerResult,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.reader.Snapshot()
	resp := stateResponse{Snapshot: snap, Victim: s.night.Victim()}

	if snap != nil {
		game, account := lowerAddr(snap.Game), lowerAddr(snap.Account)
		if c, ok, err := s.store.LoadCommitment(game, account, snap.DayCount); err == nil && ok {
			resp.Commitment = &c
		}
		if sr, ok, err := s.store.LoadSeerResult(game, account, snap.DayCount); err == nil && ok {
			resp.SeerResult = &sr
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// actionRequest covers every POST body; unused fields are ignored per route.
type actionRequest struct {
	TargetSeat uint8   `json:"targetSeat"`
	Salt       string  `json:"salt"`
	ActionType uint8   `json:"actionType"`
	Action     string  `json:"action"`
	Roles      []uint8 `json:"roles"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("writeJSON: %v", err)
	}
}

// runAction executes one gated action and converts the outcome into both an
// HTTP response and a hub status toast. Errors never escape as panics or
// half-updated state; the forced refresh after a revert is handled inside
// the action itself.
func (s *Server) runAction(w http.ResponseWriter, name string, fn func() error) {
	if err := fn(); err != nil {
		kind := "transport"
		var ae *ActionError
		if errors.As(err, &ae) {
			kind = ae.Kind.String()
		}
		log.Printf("Action %s failed (%s): %v", name, kind, err)
		s.hub.sendStatus(statusForError(err), err.Error())
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    false,
			"kind":  kind,
			"error": err.Error(),
		})
		return
	}
	msg := fmt.Sprintf("%s confirmed", name)
	s.hub.sendStatus("success", msg)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func decodeAction(w http.ResponseWriter, r *http.Request) (actionRequest, bool) {
	var req actionRequest
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok": false, "kind": "validation", "error": "malformed JSON body",
			})
			return req, false
		}
	}
	return req, true
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	if _, ok := decodeAction(w, r); !ok {
		return
	}
	s.runAction(w, "join", func() error {
		return s.actions.Join(r.Context())
	})
}

func (s *Server) handleWolfCommit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	s.runAction(w, "wolf commit", func() error {
		return s.actions.WolfCommit(r.Context(), req.TargetSeat, req.Salt)
	})
}

func (s *Server) handleWolfReveal(w http.ResponseWriter, r *http.Request) {
	if _, ok := decodeAction(w, r); !ok {
		return
	}
	s.runAction(w, "wolf reveal", func() error {
		return s.actions.WolfReveal(r.Context())
	})
}

func (s *Server) handleSeerCheck(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	s.runAction(w, "seer check", func() error {
		return s.actions.SeerCheck(r.Context(), req.TargetSeat)
	})
}

func (s *Server) handleWitchAct(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	s.runAction(w, "witch action", func() error {
		return s.actions.WitchAct(r.Context(), req.ActionType, req.TargetSeat)
	})
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	s.runAction(w, "vote", func() error {
		return s.actions.Vote(r.Context(), req.TargetSeat)
	})
}

func (s *Server) handleHunterShoot(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	s.runAction(w, "hunter shot", func() error {
		return s.actions.HunterShoot(r.Context(), req.TargetSeat)
	})
}

func (s *Server) handleHostAdvance(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}
	s.runAction(w, req.Action, func() error {
		return s.actions.Advance(r.Context(), HostAction(req.Action), req.Roles)
	})
}

// routes registers every endpoint with the shared middleware chain.
func (s *Server) routes(mux *http.ServeMux) {
	wrapHandler := func(pattern string, handler http.HandlerFunc) {
		var h http.Handler = handler
		h = compress(h)
		h = disableCaching(h)
		if appLogger != nil && appLogger.logRequests {
			mux.Handle(pattern, &LoggingHandler{Handler: h, Logger: appLogger})
		} else {
			mux.Handle(pattern, h)
		}
	}

	wrapHandler("/api/state", s.handleState)
	wrapHandler("/api/join", s.handleJoin)
	wrapHandler("/api/wolf/commit", s.handleWolfCommit)
	wrapHandler("/api/wolf/reveal", s.handleWolfReveal)
	wrapHandler("/api/seer/check", s.handleSeerCheck)
	wrapHandler("/api/witch/act", s.handleWitchAct)
	wrapHandler("/api/vote", s.handleVote)
	wrapHandler("/api/hunter/shoot", s.handleHunterShoot)
	wrapHandler("/api/host/advance", s.handleHostAdvance)
	mux.HandleFunc("/ws", s.hub.handleWebSocket)
}

func disableCaching(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Cache-Control", "no-cache")

		next.ServeHTTP(w, r)
	})
}

// shouldCompress determines if a content type should be gzip compressed
func shouldCompress(contentType string) bool {
	compressiblePrefixes := []string{
		"text/",
		"application/json",
		"application/javascript",
	}
	for _, prefix := range compressiblePrefixes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

// responseWriter wraps http.ResponseWriter to handle conditional gzip compression
type responseWriter struct {
	http.ResponseWriter
	gz            *gzip.Writer
	wrappedWriter http.ResponseWriter
	acceptGzip    bool
	headerSent    bool
}

func (w *responseWriter) WriteHeader(statusCode int) {
	if w.headerSent {
		return
	}
	w.headerSent = true

	contentType := w.Header().Get("Content-Type")
	if contentType != "" && shouldCompress(contentType) && w.acceptGzip {
		w.gz = gzip.NewWriter(w.wrappedWriter)
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Del("Content-Length")
	}

	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if !w.headerSent {
		w.WriteHeader(http.StatusOK)
	}

	if w.gz != nil {
		return w.gz.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) Close() error {
	if w.gz != nil {
		return w.gz.Close()
	}
	return nil
}

// compress adds gzip compression to compressible responses
func compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped := &responseWriter{
			ResponseWriter: w,
			wrappedWriter:  w,
			acceptGzip:     strings.Contains(r.Header.Get("Accept-Encoding"), "gzip"),
		}
		defer wrapped.Close()

		next.ServeHTTP(wrapped, r)
	})
}
