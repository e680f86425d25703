package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

type Handler struct {
	svc      *booking.Service
	logger   *slog.Logger
	verifier auth.Verifier
}

// New builds the JSON API. When verifier is disabled every route is open and
// writes are attributed to nobody.
func New(svc *booking.Service, logger *slog.Logger, verifier auth.Verifier) *Handler {
	return &Handler{svc: svc, logger: logger, verifier: verifier}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/availability", h.Availability)
	mux.HandleFunc("POST /api/v1/availability/check", h.Check)

	mux.HandleFunc("GET /api/v1/schedule/templates", h.ListTemplates)
	mux.Handle("POST /api/v1/schedule/templates", h.write(h.CreateTemplate))
	mux.Handle("PUT /api/v1/schedule/templates/{id}", h.write(h.UpdateTemplate))
	mux.Handle("DELETE /api/v1/schedule/templates/{id}", h.write(h.DeleteTemplate))

	mux.HandleFunc("GET /api/v1/schedule/blocks", h.ListBlocks)
	mux.Handle("POST /api/v1/schedule/blocks", h.write(h.CreateBlock))
	mux.Handle("DELETE /api/v1/schedule/blocks/{id}", h.write(h.DeleteBlock))

	mux.HandleFunc("GET /api/v1/appointments", h.ListAppointments)
	mux.Handle("POST /api/v1/appointments", h.write(h.Book))
	mux.HandleFunc("GET /api/v1/appointments/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/appointments/{id}", h.GetAppointment)
	mux.Handle("PATCH /api/v1/appointments/{id}", h.write(h.UpdateDetails))
	mux.Handle("PUT /api/v1/appointments/{id}/reschedule", h.write(h.Reschedule))
	mux.Handle("POST /api/v1/appointments/{id}/status", h.write(h.ChangeStatus))
}

func (h *Handler) write(fn http.HandlerFunc) http.Handler {
	if !h.verifier.Enabled() {
		return fn
	}
	return httpx.Chain(fn,
		auth.RequireAuth(h.verifier),
		auth.RequireRole(auth.RoleAdmin, auth.RoleProfessional, auth.RoleReceptionist),
	)
}

// authorize writes 403 and returns false when the caller may not change
// professionalID's schedule.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, professionalID string) bool {
	if !h.verifier.Enabled() {
		return true
	}
	claims, _ := auth.ClaimsFromContext(r.Context())
	if auth.CanActFor(claims, professionalID) {
		return true
	}
	httpx.WriteError(w, http.StatusForbidden, "forbidden", "not allowed to act for this professional")
	return false
}

func actor(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.Sub()
	}
	return ""
}

type conflictBody struct {
	httpx.ErrorBody
	Date        civil.Date       `json:"date"`
	Time        clock.Time       `json:"time"`
	Status      model.SlotStatus `json:"status"`
	OccupantRef string           `json:"occupant_ref,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *model.ConflictError
	switch {
	case errors.As(err, &conflict):
		httpx.WriteJSON(w, http.StatusConflict, conflictBody{
			ErrorBody:   httpx.ErrorBody{Error: conflict.Error(), Code: "conflict"},
			Date:        conflict.Date,
			Time:        conflict.Time,
			Status:      conflict.Status,
			OccupantRef: conflict.OccupantRef,
		})
	case errors.Is(err, model.ErrValidation):
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, model.ErrInvalidTransition):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid_transition", err.Error())
	case errors.Is(err, model.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found")
	default:
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid json body: "+err.Error())
		return false
	}
	return true
}

func queryDate(r *http.Request, key string) (civil.Date, bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return civil.Date{}, false, nil
	}
	d, err := clock.ParseDate(raw)
	if err != nil {
		return civil.Date{}, false, model.Invalid(key, "must be a valid YYYY-MM-DD date")
	}
	return d, true, nil
}

func requiredQuery(r *http.Request, key string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return "", model.Invalid(key, "is required")
	}
	return v, nil
}

// dateRange reads ?date= or ?from=&to=. A single date means from == to.
func dateRange(r *http.Request) (civil.Date, civil.Date, error) {
	date, ok, err := queryDate(r, "date")
	if err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	if ok {
		return date, date, nil
	}
	from, ok, err := queryDate(r, "from")
	if err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	if !ok {
		return civil.Date{}, civil.Date{}, model.Invalid("date", "date or from/to is required")
	}
	to, ok, err := queryDate(r, "to")
	if err != nil {
		return civil.Date{}, civil.Date{}, err
	}
	if !ok {
		to = from
	}
	return from, to, nil
}
