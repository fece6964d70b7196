// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/authwatch/internal/history"
	"github.com/tomtom215/authwatch/internal/store"
	"github.com/tomtom215/authwatch/internal/validation"
)

// ProfileReader is the read side of the history store.
//
// Satisfied by *store.Store.
type ProfileReader interface {
	ListProfiles(ctx context.Context, limit, offset int) ([]store.ProfileSummary, int, error)
	CountProfiles(ctx context.Context) (trained, deferred int, err error)
	GetProfile(ctx context.Context, userID string) (*history.Profile, history.Set, error)
	LastRun(ctx context.Context) (*store.RunRecord, error)
}

// Handler serves the read-only API.
type Handler struct {
	store     ProfileReader
	startTime time.Time
}

// NewHandler creates a handler backed by st.
func NewHandler(st ProfileReader) *Handler {
	return &Handler{store: st, startTime: time.Now()}
}

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status        string  `json:"status"`
	StoreOK       bool    `json:"store_ok"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// Healthz reports whether the store answers. It returns 503 when it does not.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	_, _, err := h.store.CountProfiles(r.Context())
	health := HealthStatus{
		Status:        "healthy",
		StoreOK:       err == nil,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
	}
	if err != nil {
		health.Status = "degraded"
		respondJSON(w, http.StatusServiceUnavailable, &APIResponse{
			Status:   "error",
			Data:     health,
			Metadata: newMetadata(r, nil),
			Error:    &APIError{Code: ErrCodeServiceUnavailable, Message: "History store unavailable"},
		})
		return
	}
	respondData(w, r, health, nil)
}

// ListProfilesRequest holds the validated query of GET /api/v1/profiles.
type ListProfilesRequest struct {
	Limit  int `json:"limit" validate:"min=1,max=1000"`
	Offset int `json:"offset" validate:"min=0"`
}

// ProfileList is the /api/v1/profiles payload.
type ProfileList struct {
	Trained  int                    `json:"trained"`
	Deferred int                    `json:"deferred"`
	Profiles []store.ProfileSummary `json:"profiles"`
}

// ListProfiles returns one page of profile summaries plus set counts.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	req := ListProfilesRequest{Limit: 100}
	q := r.URL.Query()
	for _, param := range []struct {
		name string
		dst  *int
	}{{"limit", &req.Limit}, {"offset", &req.Offset}} {
		name, dst := param.name, param.dst
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, r, http.StatusBadRequest, &APIError{
				Code:    ErrCodeBadRequest,
				Message: name + " must be an integer",
			}, nil)
			return
		}
		*dst = v
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, r, http.StatusBadRequest, &APIError{
			Code:    apiErr.Code,
			Message: apiErr.Message,
			Details: apiErr.Details,
		}, nil)
		return
	}

	items, total, err := h.store.ListProfiles(r.Context(), req.Limit, req.Offset)
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, &APIError{
			Code:    ErrCodeInternalError,
			Message: "Failed to list profiles",
		}, err)
		return
	}
	trained, deferred, err := h.store.CountProfiles(r.Context())
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, &APIError{
			Code:    ErrCodeInternalError,
			Message: "Failed to count profiles",
		}, err)
		return
	}
	if items == nil {
		items = []store.ProfileSummary{}
	}

	respondData(w, r, ProfileList{Trained: trained, Deferred: deferred, Profiles: items}, &PaginationMeta{
		Total:   total,
		Count:   len(items),
		Offset:  req.Offset,
		Limit:   req.Limit,
		HasMore: req.Offset+len(items) < total,
	})
}

// ProfileDetail is the /api/v1/profiles/{userID} payload. Raw events are
// not exposed.
type ProfileDetail struct {
	UserID       string     `json:"user_id"`
	Set          string     `json:"set"`
	EventCount   int        `json:"event_count"`
	ModelKind    string     `json:"model_kind"`
	FittedAt     *time.Time `json:"fitted_at,omitempty"`
	HiddenStates []int      `json:"hidden_states,omitempty"`
	FirstEvent   *time.Time `json:"first_event,omitempty"`
	LastEvent    *time.Time `json:"last_event,omitempty"`
}

// GetProfile returns the state of one profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	p, set, err := h.store.GetProfile(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, &APIError{
			Code:    ErrCodeNotFound,
			Message: "Profile not found",
		}, nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, &APIError{
			Code:    ErrCodeInternalError,
			Message: "Failed to load profile",
		}, err)
		return
	}

	detail := ProfileDetail{
		UserID:       p.UserID,
		Set:          string(set),
		EventCount:   len(p.Events),
		ModelKind:    string(p.Model.Kind),
		HiddenStates: p.Model.HiddenStates,
	}
	if p.Model.Fitted() {
		t := p.Model.FittedAt
		detail.FittedAt = &t
	}
	for i := range p.Events {
		e := &p.Events[i]
		if !e.TimeValid {
			continue
		}
		t := e.Time
		if detail.FirstEvent == nil || t.Before(*detail.FirstEvent) {
			detail.FirstEvent = &t
		}
		if detail.LastEvent == nil || t.After(*detail.LastEvent) {
			detail.LastEvent = &t
		}
	}
	respondData(w, r, detail, nil)
}

// LastRun returns the most recent run record.
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	rec, err := h.store.LastRun(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, r, http.StatusNotFound, &APIError{
			Code:    ErrCodeNotFound,
			Message: "No run recorded yet",
		}, nil)
		return
	}
	if err != nil {
		respondError(w, r, http.StatusInternalServerError, &APIError{
			Code:    ErrCodeInternalError,
			Message: "Failed to load last run",
		}, err)
		return
	}
	respondData(w, r, rec, nil)
}
