package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/postify/drip-engine/internal/domain"
	"github.com/postify/drip-engine/internal/pkg/httputil"
	"github.com/postify/drip-engine/internal/pkg/logger"
	"github.com/postify/drip-engine/internal/service/drip"
	"github.com/postify/drip-engine/internal/worker"
)

// DripService is the engine surface the handlers call.
type DripService interface {
	RecordEvent(ctx context.Context, userID string, kind domain.EventKind, plan *string, metadata map[string]any) (*domain.BehaviorEvent, error)
	OnUnsubscribe(ctx context.Context, userID, reason string) (bool, error)
	Resubscribe(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*drip.StatusReport, error)
	AbandonmentStatus(ctx context.Context, userID string) (*drip.AbandonmentReport, error)
	SendTemplate(ctx context.Context, userID, template, queuedBy string) (*domain.DeliveryLogEntry, error)
}

// SweepTrigger runs a sweep on demand. *worker.SweepRunner satisfies it.
type SweepTrigger interface {
	RunNow(ctx context.Context) (drip.SweepReport, error)
}

// Handlers holds the HTTP handlers for the drip endpoints.
type Handlers struct {
	drip    DripService
	sweeper SweepTrigger
}

// NewHandlers binds the HTTP surface to svc. A nil sweeper disables the
// admin sweep endpoint.
func NewHandlers(svc DripService, sweeper SweepTrigger) *Handlers {
	return &Handlers{drip: svc, sweeper: sweeper}
}

type trackEventRequest struct {
	EventType string         `json:"event_type"`
	Plan      *string        `json:"plan,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TrackEvent records a pricing-funnel event.
//
//	POST /api/users/{userID}/events
func (h *Handlers) TrackEvent(w http.ResponseWriter, r *http.Request) {
	var req trackEventRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.EventType == "" {
		httputil.BadRequest(w, "event_type is required")
		return
	}

	ev, err := h.drip.RecordEvent(r.Context(), chi.URLParam(r, "userID"), domain.EventKind(req.EventType), req.Plan, req.Metadata)
	if err != nil && ev == nil {
		h.serviceError(w, err)
		return
	}
	if err != nil {
		// The event is stored; the follow-up (cancel or schedule) failed.
		logger.Error("event follow-up failed", "event_id", ev.ID, "error", err)
	}
	httputil.Created(w, map[string]any{"tracked": true, "event_id": ev.ID})
}

type unsubscribeRequest struct {
	Reason string `json:"reason,omitempty"`
}

//	POST /api/users/{userID}/unsubscribe
func (h *Handlers) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	cancelled, err := h.drip.OnUnsubscribe(r.Context(), chi.URLParam(r, "userID"), strings.TrimSpace(req.Reason))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"unsubscribed": true, "sequence_cancelled": cancelled})
}

//	POST /api/users/{userID}/resubscribe
func (h *Handlers) Resubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.drip.Resubscribe(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.serviceError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"subscribed": true})
}

//	GET /api/users/{userID}/email-status
func (h *Handlers) EmailStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.drip.Status(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	httputil.OK(w, report)
}

//	GET /api/users/{userID}/abandonment-status
func (h *Handlers) AbandonmentStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.drip.AbandonmentStatus(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.serviceError(w, err)
		return
	}
	httputil.OK(w, report)
}

type adminSendRequest struct {
	UserID   string `json:"user_id"`
	Template string `json:"template"`
}

// AdminSend delivers one template to one user outside any sequence.
//
//	POST /api/admin/send
func (h *Handlers) AdminSend(w http.ResponseWriter, r *http.Request) {
	var req adminSendRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.UserID == "" || req.Template == "" {
		httputil.BadRequest(w, "user_id and template are required")
		return
	}

	entry, err := h.drip.SendTemplate(r.Context(), req.UserID, req.Template, "admin")
	if err != nil && entry == nil {
		h.serviceError(w, err)
		return
	}
	if err != nil {
		logger.Error("admin send not logged", "user_id", req.UserID, "error", err)
	}
	httputil.OK(w, entry)
}

// AdminSweep runs a sweep now and returns its report.
//
//	POST /api/admin/sweep
func (h *Handlers) AdminSweep(w http.ResponseWriter, r *http.Request) {
	if h.sweeper == nil {
		httputil.Unavailable(w, "sweeps are not enabled on this instance")
		return
	}
	report, err := h.sweeper.RunNow(r.Context())
	switch {
	case errors.Is(err, worker.ErrSweepBusy), errors.Is(err, worker.ErrLeaseHeld):
		httputil.Conflict(w, "sweep_busy", err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		httputil.OK(w, report)
	}
}

func (h *Handlers) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, drip.ErrUserNotFound):
		httputil.NotFound(w, "user not found")
	case errors.Is(err, drip.ErrUnknownEventKind):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, drip.ErrUnsubscribed):
		httputil.Conflict(w, "unsubscribed", "user is unsubscribed")
	default:
		httputil.InternalError(w, err)
	}
}
