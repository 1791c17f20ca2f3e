package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"

	"sponsorhub/internal/adapters/stripecsv"
	"sponsorhub/internal/domain"
	"sponsorhub/internal/errs"
	"sponsorhub/internal/ports"
	"sponsorhub/internal/services/rules"
	"sponsorhub/pkg/logger"
)

// Server is the admin surface over the import pipeline: file import, the
// unmapped-payment review queue, mapping rules, and the failed-payment ledger.
type Server struct {
	batch ports.BatchImporter
	queue ports.UnmappedQueue
	store ports.TxStore
	clock clockwork.Clock
}

func New(batch ports.BatchImporter, queue ports.UnmappedQueue, store ports.TxStore, clock clockwork.Clock) *Server {
	return &Server{batch: batch, queue: queue, store: store, clock: clock}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Post("/import", s.handleImport)
	r.Get("/unmapped", s.handleListUnmapped)
	r.Post("/unmapped/retry", s.handleRetryUnmapped)
	r.Post("/unmapped/{id}/resolve", s.handleResolveUnmapped)
	r.Post("/unmapped/{id}/ignore", s.handleIgnoreUnmapped)
	r.Get("/rules", s.handleListRules)
	r.Post("/rules", s.handleCreateRule)
	r.Get("/failed-payments", s.handleListFailedPayments)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleImport accepts a raw Stripe CSV export body and runs the batch
// importer over it. Reader rejects and import failures are merged into one
// summary so the operator sees every bad row with its number.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	rows, rejects, err := stripecsv.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, errs.NewValidationError(err.Error()))
		return
	}
	result := s.batch.ImportAll(r.Context(), rows)
	result.Failed += len(rejects)
	result.Errors = append(rejects, result.Errors...)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListUnmapped(w http.ResponseWriter, r *http.Request) {
	pending, err := s.store.PendingUnmapped(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

type resolveRequest struct {
	ProjectTitle string `json:"project_title"`
	ProjectType  string `json:"project_type"`
	CreateRule   bool   `json:"create_rule"`
}

func (s *Server) handleResolveUnmapped(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errs.NewValidationError("invalid body: "+err.Error()))
		return
	}
	target := ports.ProjectTarget{Title: req.ProjectTitle, Type: domain.ProjectType(req.ProjectType)}
	donation, err := s.queue.Resolve(r.Context(), chi.URLParam(r, "id"), target, req.CreateRule)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"donation_id": donation.ID})
}

func (s *Server) handleIgnoreUnmapped(w http.ResponseWriter, r *http.Request) {
	if err := s.queue.Ignore(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRetryUnmapped(w http.ResponseWriter, r *http.Request) {
	imported, remaining, err := s.queue.BulkRetry(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"imported": imported, "remaining": remaining})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.AllRules(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list})
}

type createRuleRequest struct {
	Pattern       string `json:"pattern"`
	Match         string `json:"match"`
	ProjectTitle  string `json:"project_title"`
	ProjectType   string `json:"project_type"`
	ChildTemplate string `json:"child_template"`
	Priority      int    `json:"priority"`
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req createRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, errs.NewValidationError("invalid body: "+err.Error()))
		return
	}
	rule := domain.MappingRule{
		Pattern:       req.Pattern,
		Match:         domain.MatchType(req.Match),
		ProjectTitle:  req.ProjectTitle,
		ProjectType:   domain.ProjectType(req.ProjectType),
		ChildTemplate: req.ChildTemplate,
		Priority:      req.Priority,
		Active:        true,
		CreatedAt:     s.clock.Now(),
	}
	if err := rules.CheckRule(rule); err != nil {
		writeError(w, r, errs.NewValidationError(err.Error()))
		return
	}
	if err := s.store.CreateRule(r.Context(), &rule); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": rule.ID})
}

func (s *Server) handleListFailedPayments(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListFailedPayments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failed_payments": list})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := http.StatusInternalServerError
	var ve *errs.ValidationError
	var nf *errs.NotFoundError
	var ae *errs.AlreadyExistsError
	switch {
	case errors.As(err, &ve):
		code = http.StatusBadRequest
	case errors.As(err, &nf):
		code = http.StatusNotFound
	case errors.As(err, &ae):
		code = http.StatusConflict
	}
	if code == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
