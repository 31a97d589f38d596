package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/BrandonDHaskell/refectory/internal/health"
	"github.com/BrandonDHaskell/refectory/internal/reconcile"
	"github.com/BrandonDHaskell/refectory/internal/refectory/service"
	"github.com/BrandonDHaskell/refectory/internal/refectory/store"
	"github.com/BrandonDHaskell/refectory/internal/refectory/window"
)

// Trigger queues reconciliation runs. *reconcile.Dispatcher satisfies it.
type Trigger interface {
	Submit(j reconcile.Job) (reconcile.Next, error)
	TriggerNow(reason string) (reconcile.Next, error)
}

type Dependencies struct {
	Logger       *log.Logger
	Addr         string
	AdminService *service.AdminService
	Monitor      *health.Monitor
	Reconcile    Trigger
	Metrics      http.Handler // served at /metrics when set
	Location     *time.Location
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	admin      *service.AdminService
	monitor    *health.Monitor
	reconcile  Trigger
	loc        *time.Location
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	if d.Location == nil {
		d.Location = time.Local
	}
	s := &Server{
		logger:    d.Logger,
		mux:       mux,
		admin:     d.AdminService,
		monitor:   d.Monitor,
		reconcile: d.Reconcile,
		loc:       d.Location,
	}

	mux.HandleFunc("GET /v1/cards/{card}", s.handleLookup)
	mux.HandleFunc("PUT /v1/cards/{card}/entitlement", s.handleSetCardEntitlement)
	mux.HandleFunc("POST /v1/identities/entitlement", s.handleSetIdentitiesEntitlement)
	mux.HandleFunc("GET /v1/units", s.handleUnits)
	mux.HandleFunc("GET /v1/units/{unit}/cards", s.handleListUnit)
	mux.HandleFunc("POST /v1/units/{unit}/entitlement", s.handleSetUnitEntitlement)
	mux.HandleFunc("GET /v1/stats", s.handleStats)
	mux.HandleFunc("GET /v1/stats/buckets", s.handleBucketCounts)
	mux.HandleFunc("GET /v1/failures", s.handleFailures)
	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.HandleFunc("POST /v1/reconcile", s.handleReconcile)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", d.Metrics)
	}

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	acct, err := s.admin.Lookup(r.Context(), r.PathValue("card"))
	if err != nil {
		s.writeServiceError(w, "lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

type entitlementRequest struct {
	Entitled   *bool    `json:"entitled"`
	Identities []string `json:"identities,omitempty"`
}

type entitlementResponse struct {
	Affected int64 `json:"affected"`
	Entitled bool  `json:"entitled"`
}

func (s *Server) handleSetCardEntitlement(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEntitlement(w, r)
	if !ok {
		return
	}
	n, err := s.admin.SetEntitlement(r.Context(), r.PathValue("card"), *req.Entitled)
	if err != nil {
		s.writeServiceError(w, "set entitlement", err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "card_not_found", "no card with that id")
		return
	}
	writeJSON(w, http.StatusOK, entitlementResponse{Affected: n, Entitled: *req.Entitled})
}

func (s *Server) handleSetIdentitiesEntitlement(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEntitlement(w, r)
	if !ok {
		return
	}
	n, err := s.admin.SetEntitlementForIdentities(r.Context(), req.Identities, *req.Entitled)
	if err != nil {
		s.writeServiceError(w, "set identities entitlement", err)
		return
	}
	writeJSON(w, http.StatusOK, entitlementResponse{Affected: n, Entitled: *req.Entitled})
}

func (s *Server) handleSetUnitEntitlement(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeEntitlement(w, r)
	if !ok {
		return
	}
	n, err := s.admin.SetUnitEntitlement(r.Context(), r.PathValue("unit"), *req.Entitled)
	if err != nil {
		s.writeServiceError(w, "set unit entitlement", err)
		return
	}
	writeJSON(w, http.StatusOK, entitlementResponse{Affected: n, Entitled: *req.Entitled})
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	units, err := s.admin.Units(r.Context())
	if err != nil {
		s.writeServiceError(w, "units", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": nonNil(units)})
}

func (s *Server) handleListUnit(w http.ResponseWriter, r *http.Request) {
	accts, err := s.admin.ListByUnit(r.Context(), r.PathValue("unit"))
	if err != nil {
		s.writeServiceError(w, "list unit", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cards": nonNil(accts)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.admin.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"units": nonNil(stats)})
}

func (s *Server) handleBucketCounts(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.parseRange(w, r)
	if !ok {
		return
	}
	counts, err := s.admin.BucketCounts(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, "bucket counts", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"from": from, "to": to, "buckets": counts})
}

func (s *Server) handleFailures(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.parseRange(w, r)
	if !ok {
		return
	}
	recs, err := s.admin.Failures(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, "failures", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": failuresToView(recs)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.monitor.Snapshot()
	status := http.StatusOK
	if !snap.Status.Serving() {
		status = http.StatusServiceUnavailable
	}
	if wantsProtobuf(r) {
		msg, err := healthToProto(snap)
		if err != nil {
			s.logger.Printf("health proto: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, status, msg)
		return
	}
	writeJSON(w, status, snap)
}

type reconcileResponse struct {
	Queued bool      `json:"queued"`
	Window window.ID `json:"window,omitempty"`
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if s.reconcile == nil {
		writeError(w, http.StatusServiceUnavailable, "reconcile_disabled", "reconciliation is not configured")
		return
	}

	var err error
	resp := reconcileResponse{Queued: true}
	if raw := strings.TrimSpace(r.URL.Query().Get("window")); raw != "" {
		id, perr := window.ParseID(raw)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", perr.Error())
			return
		}
		resp.Window = id
		_, err = s.reconcile.Submit(reconcile.Job{Window: id, Reason: "admin"})
	} else {
		_, err = s.reconcile.TriggerNow("admin")
	}

	if err != nil {
		if errors.Is(err, reconcile.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "queue_full", err.Error())
			return
		}
		s.logger.Printf("reconcile trigger error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCardID):
		writeError(w, http.StatusBadRequest, "invalid_card_id", err.Error())
	case errors.Is(err, service.ErrNoIdentities):
		writeError(w, http.StatusBadRequest, "invalid_identities", err.Error())
	case errors.Is(err, service.ErrInvalidTimeRange):
		writeError(w, http.StatusBadRequest, "invalid_time_range", err.Error())
	case errors.Is(err, store.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "card_not_found", "no card with that id")
	default:
		s.logger.Printf("%s error: %v", op, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
