package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

type statusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	var req booking.BookRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.ProfessionalID = strings.TrimSpace(req.ProfessionalID)
	req.PatientID = strings.TrimSpace(req.PatientID)
	if !h.authorize(w, r, req.ProfessionalID) {
		return
	}
	if by := actor(r); by != "" {
		req.CreatedBy = by
	}
	appt, err := h.svc.Book(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, err := h.svc.GetAppointment(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.AppointmentFilter{
		ProfessionalID: strings.TrimSpace(q.Get("professional_id")),
		PatientID:      strings.TrimSpace(q.Get("patient_id")),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := model.ParseStatus(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		f.Status = st
	}
	if raw := q.Get("type"); raw != "" {
		typ, err := model.ParseAppointmentType(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		f.Type = typ
	}
	from, ok, err := queryDate(r, "from")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ok {
		f.From = &from
	}
	to, ok, err := queryDate(r, "to")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if ok {
		f.To = &to
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, r, model.Invalid("limit", "must be an integer"))
			return
		}
		f.Limit = n
	}
	items, err := h.svc.ListAppointments(r.Context(), f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list(items))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
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
	stats, err := h.svc.Stats(r.Context(), prof, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, stats)
}

func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req booking.RescheduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.authorizeAppointment(w, r, id) {
		return
	}
	appt, err := h.svc.Reschedule(r.Context(), id, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req booking.DetailsUpdate
	if !h.decode(w, r, &req) {
		return
	}
	if !h.authorizeAppointment(w, r, id) {
		return
	}
	appt, err := h.svc.UpdateDetails(r.Context(), id, req, actor(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	to, err := model.ParseStatus(strings.TrimSpace(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !h.authorizeAppointment(w, r, id) {
		return
	}
	appt, err := h.svc.Transition(r.Context(), id, to, actor(r), strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *Handler) authorizeAppointment(w http.ResponseWriter, r *http.Request, id string) bool {
	if !h.verifier.Enabled() {
		return true
	}
	appt, err := h.svc.GetAppointment(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return false
	}
	return h.authorize(w, r, appt.ProfessionalID)
}
