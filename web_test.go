package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setupServer(t *testing.T, views *fakeViews) (*Server, *Reader) {
	t.Helper()
	store, err := OpenSecretStore(filepath.Join(t.TempDir(), "secrets.db"))
	if err != nil {
		t.Fatalf("OpenSecretStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	night := NewNightLog()
	hub := newHub()
	reader := NewReader(views, myAddr, time.Second, nil)
	actions := NewActions(context.Background(), &fakeTxer{}, store, night, reader.Snapshot, nil)

	return &Server{
		store:   store,
		reader:  reader,
		night:   night,
		actions: actions,
		hub:     hub,
	}, reader
}

func TestHandleStateBeforeFirstRead(t *testing.T) {
	srv, _ := setupServer(t, lobbyViews())

	rec := httptest.NewRecorder()
	srv.handleState(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	var resp stateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Snapshot != nil {
		t.Fatal("snapshot present before the first chain read")
	}
	if resp.Victim != NoVictim {
		t.Fatalf("victim = %d, want NoVictim", resp.Victim)
	}
}

func TestHandleStateIncludesLocalSecrets(t *testing.T) {
	views := lobbyViews()
	views.phase = PhaseNightReveal
	views.day = 1
	srv, reader := setupServer(t, views)

	if _, err := reader.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	salt := SaltToHex(testSalt(0x33))
	if err := srv.store.SaveCommitment(lowerAddr(gameAddr), lowerAddr(myAddr), 1, 2, salt); err != nil {
		t.Fatalf("SaveCommitment: %v", err)
	}
	if err := srv.store.SaveSeerResult(lowerAddr(gameAddr), lowerAddr(myAddr), 1, 3, FactionWolves); err != nil {
		t.Fatalf("SaveSeerResult: %v", err)
	}
	srv.night.Apply(GameEvent{Kind: EventNightResolved, Seat: 1})

	rec := httptest.NewRecorder()
	srv.handleState(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	var resp stateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Snapshot == nil || resp.Snapshot.Phase != PhaseNightReveal {
		t.Fatalf("snapshot %+v", resp.Snapshot)
	}
	if resp.Commitment == nil || resp.Commitment.TargetSeat != 2 || resp.Commitment.Salt != salt {
		t.Fatalf("commitment %+v", resp.Commitment)
	}
	if resp.SeerResult == nil || resp.SeerResult.Seat != 3 {
		t.Fatalf("seer result %+v", resp.SeerResult)
	}
	if resp.Victim != 1 {
		t.Fatalf("victim = %d, want 1", resp.Victim)
	}
}

func TestActionEndpointReportsEligibilityFailure(t *testing.T) {
	views := lobbyViews() // lobby: voting is closed
	srv, reader := setupServer(t, views)
	if _, err := reader.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/vote", strings.NewReader(`{"targetSeat":1}`))
	rec := httptest.NewRecorder()
	srv.handleVote(rec, req)

	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["ok"] != false {
		t.Fatalf("response %+v", resp)
	}
	if resp["kind"] != "eligibility" {
		t.Fatalf("kind = %v, want eligibility", resp["kind"])
	}
}

func TestActionEndpointRejectsMalformedJSON(t *testing.T) {
	srv, _ := setupServer(t, lobbyViews())

	req := httptest.NewRequest(http.MethodPost, "/api/vote", strings.NewReader(`{"targetSeat":`))
	rec := httptest.NewRecorder()
	srv.handleVote(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestActionEndpointRejectsGet(t *testing.T) {
	srv, _ := setupServer(t, lobbyViews())

	rec := httptest.NewRecorder()
	srv.handleJoin(rec, httptest.NewRequest(http.MethodGet, "/api/join", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestStatusForError(t *testing.T) {
	if got := statusForError(eligibilityErr("nope")); got != "warning" {
		t.Fatalf("eligibility maps to %q, want warning", got)
	}
	if got := statusForError(validationErr("bad")); got != "warning" {
		t.Fatalf("validation maps to %q, want warning", got)
	}
	if got := statusForError(classifyTxError(errAny("execution reverted: wrong phase"))); got != "error" {
		t.Fatalf("revert maps to %q, want error", got)
	}
}

type errAny string

func (e errAny) Error() string { return string(e) }

func TestCompressMiddleware(t *testing.T) {
	handler := compress(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "gzip" {
		t.Fatalf("Content-Encoding = %q, want gzip", got)
	}

	// Without the header the body passes through unchanged.
	req = httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Header().Get("Content-Encoding") != "" {
		t.Fatal("compressed a response the client cannot decode")
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Fatalf("body %q", rec.Body.String())
	}
}

func TestDisableCachingMiddleware(t *testing.T) {
	handler := disableCaching(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Fatalf("Cache-Control = %q", got)
	}
}
