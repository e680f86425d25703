package handlers

import (
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

type availabilityResponse struct {
	ProfessionalID string                 `json:"professional_id"`
	From           civil.Date             `json:"from"`
	To             civil.Date             `json:"to"`
	Slots          []model.ResolvedSlot   `json:"slots"`
	Days           []availability.Summary `json:"days"`
}

type checkRequest struct {
	ProfessionalID       string     `json:"professional_id"`
	Date                 civil.Date `json:"date"`
	StartTime            clock.Time `json:"start_time"`
	DurationMinutes      int        `json:"duration_minutes"`
	ExcludeAppointmentID string     `json:"exclude_appointment_id,omitempty"`
}

type checkResponse struct {
	Available bool `json:"available"`
}

func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	prof, err := requiredQuery(r, "professional_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slots, err := h.svc.ResolveAvailability(r.Context(), prof, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if slots == nil {
		slots = []model.ResolvedSlot{}
	}
	httpx.WriteJSON(w, http.StatusOK, availabilityResponse{
		ProfessionalID: prof,
		From:           from,
		To:             to,
		Slots:          slots,
		Days:           availability.Summarize(slots, from, to),
	})
}

// Check answers 200 when the proposal would be accepted and otherwise writes
// the same error a booking would get.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !h.decode(w, r, &req) {
		return
	}
	prof := strings.TrimSpace(req.ProfessionalID)
	if prof == "" {
		h.writeError(w, r, model.Invalid("professional_id", "is required"))
		return
	}
	err := h.svc.CheckBookingConflict(r.Context(), availability.Proposal{
		ProfessionalID:  prof,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		ExcludeID:       strings.TrimSpace(req.ExcludeAppointmentID),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Available: true})
}
