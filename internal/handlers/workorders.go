package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ukydev/workorder-safety/internal/apperr"
	"github.com/ukydev/workorder-safety/internal/completion"
	"github.com/ukydev/workorder-safety/internal/downtime"
	"github.com/ukydev/workorder-safety/internal/events"
)

// ResumeInput picks a resume time: an explicit time, or now, shifted by any
// nudges in minutes.
type ResumeInput struct {
	ResumedAt     *time.Time `json:"resumed_at,omitempty"`
	NudgeMinutes  []int      `json:"nudge_minutes,omitempty"`
	ConfirmResume bool       `json:"confirm_resume,omitempty"`
}

func (in ResumeInput) given() bool {
	return in.ResumedAt != nil || len(in.NudgeMinutes) > 0 || in.ConfirmResume
}

func proposeResume(tracker *downtime.Tracker, in ResumeInput) (time.Time, error) {
	adj, err := tracker.NewAdjuster()
	if err != nil {
		return time.Time{}, err
	}
	if in.ResumedAt != nil {
		if err := adj.Set(*in.ResumedAt); err != nil {
			return time.Time{}, err
		}
	}
	for _, m := range in.NudgeMinutes {
		if err := adj.Nudge(time.Duration(m) * time.Minute); err != nil {
			return time.Time{}, err
		}
	}
	return adj.Proposed(), adj.Validate()
}

// GetWorkOrder returns the work order detail view
func (h *WorkOrderHandler) GetWorkOrder(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	detail, err := s.Detail(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// StartWork moves the work order to in progress
func (h *WorkOrderHandler) StartWork(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	wo, err := h.completion.Start(r.Context(), s, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wo)
}

type completeRequest struct {
	ResumeInput
	CompletionNotes string   `json:"completion_notes"`
	ActualHours     *float64 `json:"actual_hours,omitempty"`
	DowntimeNotes   string   `json:"downtime_notes,omitempty"`
}

// CompleteWorkOrder resolves downtime and completes the work order
func (h *WorkOrderHandler) CompleteWorkOrder(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	var body completeRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	req := completion.Request{
		CompletionNotes: body.CompletionNotes,
		ActualHours:     body.ActualHours,
		DowntimeNotes:   body.DowntimeNotes,
	}
	if body.given() {
		if ev, ok := s.Downtime().Event(); ok && ev.IsOngoing() {
			resumedAt, err := proposeResume(s.Downtime(), body.ResumeInput)
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			req.ResumedAt = &resumedAt
		}
	}

	res, err := h.completion.Complete(r.Context(), s, actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.sessions.Evict(s.ID())
	writeJSON(w, http.StatusOK, res)
}

type resolveRequest struct {
	ResumeInput
	Notes string `json:"notes,omitempty"`
}

// ResolveDowntime closes the ongoing downtime event without completing
func (h *WorkOrderHandler) ResolveDowntime(w http.ResponseWriter, r *http.Request) {
	s, actor, ok := h.session(w, r)
	if !ok {
		return
	}
	var body resolveRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	resumedAt, err := proposeResume(s.Downtime(), body.ResumeInput)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ev, err := s.Downtime().Resolve(r.Context(), resumedAt, body.Notes, actor.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	s.Notify(r.Context(), events.DowntimeResolved, actor, ev)
	writeJSON(w, http.StatusOK, ev)
}

// StreamDowntime streams the live elapsed time of the ongoing downtime as
// server-sent events until it is resolved or the client goes away.
func (h *WorkOrderHandler) StreamDowntime(w http.ResponseWriter, r *http.Request) {
	s, _, ok := h.session(w, r)
	if !ok {
		return
	}
	ev, ok := s.Downtime().Event()
	if !ok || !ev.IsOngoing() {
		h.writeError(w, r, apperr.NotFound("streamDowntime", r.PathValue("id"), "no ongoing downtime"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	err := downtime.Watch(r.Context(), s.Downtime(), h.tick, func(t downtime.Tick) {
		data, _ := json.Marshal(t)
		fmt.Fprintf(w, "event: elapsed\ndata: %s\n\n", data)
		flusher.Flush()
	})
	if err == nil {
		final, _ := s.Downtime().Event()
		data, _ := json.Marshal(final)
		fmt.Fprintf(w, "event: resolved\ndata: %s\n\n", data)
		flusher.Flush()
	}
}
