package handlers

import (
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

type templateRequest struct {
	ProfessionalID      string      `json:"professional_id"`
	DayOfWeek           int         `json:"day_of_week"`
	StartTime           clock.Time  `json:"start_time"`
	EndTime             clock.Time  `json:"end_time"`
	SlotDurationMinutes int         `json:"slot_duration_minutes"`
	IsActive            *bool       `json:"is_active,omitempty"`
	ValidFrom           *civil.Date `json:"valid_from,omitempty"`
	ValidUntil          *civil.Date `json:"valid_until,omitempty"`
	Notes               string      `json:"notes,omitempty"`
}

func (req templateRequest) template() model.Template {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return model.Template{
		ProfessionalID: strings.TrimSpace(req.ProfessionalID),
		DayOfWeek:      time.Weekday(req.DayOfWeek),
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		SlotDuration:   req.SlotDurationMinutes,
		IsActive:       active,
		ValidFrom:      req.ValidFrom,
		ValidUntil:     req.ValidUntil,
		Notes:          strings.TrimSpace(req.Notes),
	}
}

type blockRequest struct {
	ProfessionalID  string      `json:"professional_id"`
	Date            civil.Date  `json:"date"`
	EndDate         *civil.Date `json:"end_date,omitempty"`
	StartTime       *clock.Time `json:"start_time,omitempty"`
	EndTime         *clock.Time `json:"end_time,omitempty"`
	Reason          string      `json:"reason"`
	RecurringYearly bool        `json:"recurring_yearly,omitempty"`
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items}
}

func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	prof, err := requiredQuery(r, "professional_id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.svc.ListTemplates(r.Context(), prof)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list(items))
}

func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if !h.decode(w, r, &req) {
		return
	}
	t := req.template()
	if !h.authorize(w, r, t.ProfessionalID) {
		return
	}
	created, err := h.svc.CreateTemplate(r.Context(), t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req templateRequest
	if !h.decode(w, r, &req) {
		return
	}
	cur, err := h.svc.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !h.authorize(w, r, cur.ProfessionalID) {
		return
	}
	if req.ProfessionalID != "" && strings.TrimSpace(req.ProfessionalID) != cur.ProfessionalID {
		h.writeError(w, r, model.Invalid("professional_id", "cannot be changed"))
		return
	}
	updated, err := h.svc.UpdateTemplate(r.Context(), id, req.template())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cur, err := h.svc.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !h.authorize(w, r, cur.ProfessionalID) {
		return
	}
	if err := h.svc.DeleteTemplate(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListBlocks(w http.ResponseWriter, r *http.Request) {
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
	items, err := h.svc.ListBlocks(r.Context(), prof, from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list(items))
}

func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if !h.decode(w, r, &req) {
		return
	}
	b := model.Block{
		ProfessionalID:  strings.TrimSpace(req.ProfessionalID),
		Date:            req.Date,
		EndDate:         req.EndDate,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Reason:          strings.TrimSpace(req.Reason),
		RecurringYearly: req.RecurringYearly,
	}
	if !h.authorize(w, r, b.ProfessionalID) {
		return
	}
	created, err := h.svc.CreateBlock(r.Context(), b)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	cur, err := h.svc.GetBlock(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !h.authorize(w, r, cur.ProfessionalID) {
		return
	}
	if err := h.svc.DeleteBlock(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
