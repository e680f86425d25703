package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/booking"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
)

const testSecret = "test-secret"

func newServer(t *testing.T, verifier auth.Verifier) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := booking.NewService(storage.NewMemory(), nil, logger, nil, booking.Config{
		Now: func() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) },
	})
	mux := http.NewServeMux()
	New(svc, logger, verifier).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			rdr = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			rdr = bytes.NewReader(raw)
		}
	}
	req, err := http.NewRequest(method, srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp, raw
}

func mondayTemplate(prof string) map[string]any {
	return map[string]any{
		"professional_id":       prof,
		"day_of_week":           1,
		"start_time":            "09:00",
		"end_time":              "12:00",
		"slot_duration_minutes": 30,
	}
}

func booking0930(prof string) map[string]any {
	return map[string]any{
		"professional_id":  prof,
		"patient_id":       "patient-1",
		"date":             "2024-01-08",
		"start_time":       "09:30",
		"duration_minutes": 30,
	}
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		t.Fatalf("decode error body %q: %v", raw, err)
	}
	return body.Code
}

func TestAvailabilityAndBookingFlow(t *testing.T) {
	srv := newServer(t, auth.Verifier{})

	resp, raw := do(t, srv, http.MethodPost, "/api/v1/schedule/templates", "", mondayTemplate("prof-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create template: %d %s", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, http.MethodPost, "/api/v1/appointments", "", booking0930("prof-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: %d %s", resp.StatusCode, raw)
	}
	var appt model.Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		t.Fatalf("decode appointment: %v", err)
	}

	resp, raw = do(t, srv, http.MethodGet, "/api/v1/availability?professional_id=prof-1&date=2024-01-08", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("availability: %d %s", resp.StatusCode, raw)
	}
	var avail availabilityResponse
	if err := json.Unmarshal(raw, &avail); err != nil {
		t.Fatalf("decode availability: %v", err)
	}
	if len(avail.Slots) != 6 || avail.Slots[1].Status != model.SlotBusy || avail.Slots[1].OccupantRef != appt.ID {
		t.Fatalf("unexpected slots: %+v", avail.Slots)
	}
	if len(avail.Days) != 1 || avail.Days[0].Busy != 1 || avail.Days[0].Available != 5 {
		t.Fatalf("unexpected summary: %+v", avail.Days)
	}

	resp, raw = do(t, srv, http.MethodPost, "/api/v1/appointments", "", booking0930("prof-1"))
	if resp.StatusCode != http.StatusConflict || errorCode(t, raw) != "conflict" {
		t.Fatalf("expected 409 conflict, got %d %s", resp.StatusCode, raw)
	}

	check := map[string]any{
		"professional_id":        "prof-1",
		"date":                   "2024-01-08",
		"start_time":             "09:30",
		"duration_minutes":       30,
		"exclude_appointment_id": appt.ID,
	}
	resp, raw = do(t, srv, http.MethodPost, "/api/v1/availability/check", "", check)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("check with exclusion: %d %s", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, http.MethodPost, "/api/v1/appointments/"+appt.ID+"/status", "", map[string]string{"status": "completed"})
	if resp.StatusCode != http.StatusUnprocessableEntity || errorCode(t, raw) != "invalid_transition" {
		t.Fatalf("expected 422, got %d %s", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, http.MethodPost, "/api/v1/appointments/"+appt.ID+"/status", "", map[string]string{"status": "cancelled", "reason": "rain"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: %d %s", resp.StatusCode, raw)
	}

	resp, raw = do(t, srv, http.MethodGet, "/api/v1/appointments/stats?professional_id=prof-1&from=2024-01-01&to=2024-01-31", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: %d %s", resp.StatusCode, raw)
	}
	var stats model.Stats
	if err := json.Unmarshal(raw, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.ByStatus[model.StatusCancelled] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newServer(t, auth.Verifier{})

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"missing professional", http.MethodGet, "/api/v1/availability?date=2024-01-08", nil, http.StatusBadRequest, "validation_error"},
		{"bad date", http.MethodGet, "/api/v1/availability?professional_id=p&date=2024-13-01", nil, http.StatusBadRequest, "validation_error"},
		{"range too long", http.MethodGet, "/api/v1/availability?professional_id=p&from=2024-01-01&to=2024-12-31", nil, http.StatusBadRequest, "validation_error"},
		{"unknown field", http.MethodPost, "/api/v1/appointments", `{"professional_id":"p","bogus":1}`, http.StatusBadRequest, "validation_error"},
		{"bad clock time", http.MethodPost, "/api/v1/availability/check", `{"professional_id":"p","date":"2024-01-08","start_time":"9:00","duration_minutes":30}`, http.StatusBadRequest, "validation_error"},
		{"no working hours", http.MethodPost, "/api/v1/availability/check", `{"professional_id":"p","date":"2024-01-08","start_time":"09:00","duration_minutes":30}`, http.StatusBadRequest, "validation_error"},
		{"unknown appointment", http.MethodGet, "/api/v1/appointments/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown template", http.MethodDelete, "/api/v1/schedule/templates/nope", nil, http.StatusNotFound, "not_found"},
		{"unknown status", http.MethodPost, "/api/v1/appointments/nope/status", `{"status":"done"}`, http.StatusBadRequest, "validation_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := do(t, srv, tc.method, tc.path, "", tc.body)
			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d %s", tc.status, resp.StatusCode, raw)
			}
			if got := errorCode(t, raw); got != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, got)
			}
		})
	}
}

func TestWritesRequireAuthorisedCaller(t *testing.T) {
	srv := newServer(t, auth.Verifier{Secret: testSecret})
	sign := func(sub, prof, role string) string {
		tok, err := auth.SignHS256(auth.NewClaims(sub, prof, role, time.Hour), testSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return tok
	}

	resp, _ := do(t, srv, http.MethodPost, "/api/v1/schedule/templates", "", mondayTemplate("prof-1"))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	patient := sign("patient-1", "", "patient")
	resp, _ = do(t, srv, http.MethodPost, "/api/v1/schedule/templates", patient, mondayTemplate("prof-1"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for an unknown role, got %d", resp.StatusCode)
	}

	other := sign("user-2", "prof-2", auth.RoleProfessional)
	resp, _ = do(t, srv, http.MethodPost, "/api/v1/schedule/templates", other, mondayTemplate("prof-1"))
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for another professional, got %d", resp.StatusCode)
	}

	own := sign("user-1", "prof-1", auth.RoleProfessional)
	resp, raw := do(t, srv, http.MethodPost, "/api/v1/schedule/templates", own, mondayTemplate("prof-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for own schedule, got %d %s", resp.StatusCode, raw)
	}

	desk := sign("desk-1", "", auth.RoleReceptionist)
	resp, raw = do(t, srv, http.MethodPost, "/api/v1/appointments", desk, booking0930("prof-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected receptionist booking to succeed, got %d %s", resp.StatusCode, raw)
	}
	var appt model.Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if appt.CreatedBy != "desk-1" {
		t.Fatalf("expected created_by from token subject, got %q", appt.CreatedBy)
	}

	resp, raw = do(t, srv, http.MethodPost, "/api/v1/appointments/"+appt.ID+"/status", other, map[string]string{"status": "confirmed"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 changing another professional's appointment, got %d %s", resp.StatusCode, raw)
	}

	resp, _ = do(t, srv, http.MethodGet, "/api/v1/availability?professional_id=prof-1&date=2024-01-08", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected reads to stay open, got %d", resp.StatusCode)
	}
}

func TestUpdateAppointmentDetails(t *testing.T) {
	srv := newServer(t, auth.Verifier{})
	if resp, raw := do(t, srv, http.MethodPost, "/api/v1/schedule/templates", "", mondayTemplate("prof-1")); resp.StatusCode != http.StatusCreated {
		t.Fatalf("create template: %d %s", resp.StatusCode, raw)
	}
	resp, raw := do(t, srv, http.MethodPost, "/api/v1/appointments", "", booking0930("prof-1"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: %d %s", resp.StatusCode, raw)
	}
	var appt model.Appointment
	if err := json.Unmarshal(raw, &appt); err != nil {
		t.Fatalf("decode appointment: %v", err)
	}

	resp, raw = do(t, srv, http.MethodPatch, "/api/v1/appointments/"+appt.ID, "", map[string]string{
		"type":         "follow_up",
		"observations": "bring previous x-rays",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch: %d %s", resp.StatusCode, raw)
	}
	var updated model.Appointment
	if err := json.Unmarshal(raw, &updated); err != nil {
		t.Fatalf("decode appointment: %v", err)
	}
	if updated.Type != model.TypeFollowUp || updated.Observations != "bring previous x-rays" {
		t.Fatalf("details not applied: %+v", updated)
	}
	if updated.StartTime != appt.StartTime || updated.Status != model.StatusScheduled {
		t.Fatalf("time or status changed: %+v", updated)
	}

	resp, raw = do(t, srv, http.MethodPatch, "/api/v1/appointments/"+appt.ID, "", map[string]string{"type": "surgery"})
	if resp.StatusCode != http.StatusBadRequest || errorCode(t, raw) != "validation_error" {
		t.Fatalf("expected 400 for unknown type, got %d %s", resp.StatusCode, raw)
	}
	resp, raw = do(t, srv, http.MethodPatch, "/api/v1/appointments/nope", "", map[string]string{"notes": "x"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", resp.StatusCode, raw)
	}
}
