package httpadapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"sponsorhub/internal/adapters/memory"
	"sponsorhub/internal/services/importer"
	"sponsorhub/internal/services/resolver"
	"sponsorhub/internal/services/unmapped"
)

var serverTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestServer() (*Server, *memory.Store) {
	store := memory.New()
	clock := clockwork.NewFakeClockAt(serverTime)
	res := resolver.New(clock)
	queue := unmapped.New(store, res, clock)
	svc := importer.New(store, queue, res, clock)
	queue.AttachImporter(svc)
	return New(svc, queue, store, clock), store
}

func postJSON(t *testing.T, srv *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	return w
}

func TestCreateRuleStampsCreatedAt(t *testing.T) {
	srv, store := newTestServer()

	w := postJSON(t, srv, "/rules", `{"pattern":"christmas appeal","match":"contains","project_title":"Building Fund","project_type":"campaign","priority":5}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body)
	}

	active, err := store.ActiveRules(context.Background())
	if err != nil {
		t.Fatalf("ActiveRules: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("rules = %d, want 1", len(active))
	}
	// A zero stamp would sort the rule before every older one in the
	// created-at tie-break for equal priorities.
	if !active[0].CreatedAt.Equal(serverTime) {
		t.Fatalf("created_at = %v, want %v", active[0].CreatedAt, serverTime)
	}
}

func TestCreateRuleRejectsSponsorshipWithoutChildTemplate(t *testing.T) {
	srv, _ := newTestServer()

	w := postJSON(t, srv, "/rules", `{"pattern":"sponsor code (\\d+)","match":"regex","project_title":"Sponsor $1","project_type":"sponsorship","priority":5}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body = %s)", w.Code, w.Body)
	}
}

func TestCreateRuleRejectsInvalidPattern(t *testing.T) {
	srv, _ := newTestServer()

	w := postJSON(t, srv, "/rules", `{"pattern":"([","match":"regex","project_title":"X","project_type":"general"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body = %s)", w.Code, w.Body)
	}
}
