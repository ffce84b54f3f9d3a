package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kshitijlohbare/wellbook/libs/auth"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/booking"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/calendar"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/idempotency"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/meeting"
	"github.com/kshitijlohbare/wellbook/services/booking-service/internal/model"
)

// Bookings is the orchestrator surface the HTTP layer needs.
type Bookings interface {
	CreateBooking(ctx context.Context, req booking.CreateRequest) (booking.CreateResult, error)
	RescheduleAppointment(ctx context.Context, appointmentID, userID, newDate, newTime string) error
	CancelAppointment(ctx context.Context, appointmentID, userID, reason string) (booking.CancelResult, error)
	ListAppointments(ctx context.Context, userID string, limit int) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, userID, appointmentID string) (booking.View, error)
}

type AppointmentHandler struct {
	svc    Bookings
	idem   *idempotency.Store
	logger *slog.Logger
	loc    *time.Location
}

// NewAppointmentHandler wires the routes. idem may be nil, in which case
// Idempotency-Key headers are ignored.
func NewAppointmentHandler(svc Bookings, idem *idempotency.Store, logger *slog.Logger, loc *time.Location) *AppointmentHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &AppointmentHandler{svc: svc, idem: idem, logger: logger, loc: loc}
}

// Register mounts the appointment routes on mux.
func (h *AppointmentHandler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	if wrap == nil {
		wrap = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("/api/v1/appointments", wrap(http.HandlerFunc(h.collection)))
	mux.Handle("/api/v1/appointments/reschedule", wrap(http.HandlerFunc(h.Reschedule)))
	mux.Handle("/api/v1/appointments/cancel", wrap(http.HandlerFunc(h.Cancel)))
	mux.Handle("/api/v1/appointments/get", wrap(http.HandlerFunc(h.Get)))
	mux.Handle("/api/v1/appointments/calendar.ics", wrap(http.HandlerFunc(h.Calendar)))
}

func (h *AppointmentHandler) collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type meetingConfigRequest struct {
	Platform  string `json:"platform"`
	HostEmail string `json:"host_email"`
}

type createAppointmentRequest struct {
	PractitionerID   string                `json:"practitioner_id"`
	PractitionerName string                `json:"practitioner_name"`
	Date             string                `json:"date"`
	Time             string                `json:"time"`
	SessionType      string                `json:"session_type"`
	DurationMinutes  int                   `json:"duration_minutes"`
	Notes            string                `json:"notes"`
	UserEmail        string                `json:"user_email"`
	UserName         string                `json:"user_name"`
	Meeting          *meetingConfigRequest `json:"meeting"`
}

type createAppointmentResponse struct {
	Success        bool             `json:"success"`
	AppointmentID  string           `json:"appointment_id"`
	MeetingDetails *meeting.Details `json:"meeting_details,omitempty"`
}

type rescheduleRequest struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelResponse struct {
	Success          bool   `json:"success"`
	AppointmentID    string `json:"appointment_id"`
	Status           string `json:"status"`
	CancelledAt      string `json:"cancelled_at"`
	AlreadyCancelled bool   `json:"already_cancelled,omitempty"`
}

type meetingItem struct {
	Platform  string `json:"platform"`
	URL       string `json:"url"`
	MeetingID string `json:"meeting_id,omitempty"`
	Password  string `json:"password,omitempty"`
	Status    string `json:"status"`
}

type appointmentItem struct {
	AppointmentID    string       `json:"appointment_id"`
	PractitionerID   string       `json:"practitioner_id"`
	PractitionerName string       `json:"practitioner_name"`
	Date             string       `json:"date"`
	Time             string       `json:"time"`
	DurationMinutes  int          `json:"duration_minutes"`
	SessionType      string       `json:"session_type"`
	Status           string       `json:"status"`
	Notes            string       `json:"notes,omitempty"`
	CancelReason     string       `json:"cancel_reason,omitempty"`
	CancelledAt      string       `json:"cancelled_at,omitempty"`
	CreatedAt        string       `json:"created_at"`
	UpdatedAt        string       `json:"updated_at"`
	Meeting          *meetingItem `json:"meeting,omitempty"`
	Reminders        []string     `json:"pending_reminders,omitempty"`
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	ctx := r.Context()
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if h.idem == nil {
		idemKey = ""
	}
	if idemKey != "" {
		rec, replay, err := h.idem.Begin(ctx, claims.UserID(), idemKey)
		switch {
		case errors.Is(err, idempotency.ErrInProgress):
			writeError(w, http.StatusConflict, err.Error())
			return
		case err != nil:
			// Redis trouble should not block bookings.
			h.logger.Warn("idempotency lookup failed", "err", err)
			idemKey = ""
		case replay:
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.Status)
			_, _ = w.Write(rec.Body)
			return
		}
	}

	in := booking.CreateRequest{
		UserID:           claims.UserID(),
		PractitionerID:   req.PractitionerID,
		PractitionerName: req.PractitionerName,
		Date:             req.Date,
		Time:             req.Time,
		SessionType:      req.SessionType,
		DurationMinutes:  req.DurationMinutes,
		Notes:            req.Notes,
		UserEmail:        firstNonEmpty(claims.Email, req.UserEmail),
		UserName:         firstNonEmpty(req.UserName, claims.DisplayName()),
	}
	if req.Meeting != nil {
		in.Meeting = &booking.MeetingConfig{Platform: req.Meeting.Platform, HostEmail: req.Meeting.HostEmail}
	}

	res, err := h.svc.CreateBooking(ctx, in)
	if err != nil {
		status, msg := errorStatus("create appointment", err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("create appointment failed", "user_id", in.UserID, "err", err)
		}
		body := errorBody(msg)
		if idemKey != "" {
			h.finishIdempotency(ctx, claims.UserID(), idemKey, status, body)
		}
		writeBody(w, status, body)
		return
	}

	body, err := json.Marshal(createAppointmentResponse{Success: true, AppointmentID: res.AppointmentID, MeetingDetails: res.Meeting})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build response")
		return
	}
	if idemKey != "" {
		h.finishIdempotency(ctx, claims.UserID(), idemKey, http.StatusCreated, body)
	}
	writeBody(w, http.StatusCreated, body)
}

// finishIdempotency records client errors and successes for replay; server
// errors release the key so the client can retry.
func (h *AppointmentHandler) finishIdempotency(ctx context.Context, userID, key string, status int, body []byte) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if status >= http.StatusInternalServerError {
		err = h.idem.Release(ctx, userID, key)
	} else {
		err = h.idem.Complete(ctx, userID, key, idempotency.Record{Status: status, Body: body})
	}
	if err != nil {
		h.logger.Warn("idempotency finalize failed", "err", err)
	}
}

func (h *AppointmentHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.svc.RescheduleAppointment(r.Context(), req.AppointmentID, claims.UserID(), req.Date, req.Time); err != nil {
		status, msg := errorStatus("reschedule appointment", err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("reschedule appointment failed", "appointment_id", req.AppointmentID, "err", err)
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appointment_id": strings.TrimSpace(req.AppointmentID)})
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	res, err := h.svc.CancelAppointment(r.Context(), req.AppointmentID, claims.UserID(), req.Reason)
	if err != nil {
		status, msg := errorStatus("cancel appointment", err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("cancel appointment failed", "appointment_id", req.AppointmentID, "err", err)
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse{
		Success:          true,
		AppointmentID:    res.AppointmentID,
		Status:           model.StatusCancelled,
		CancelledAt:      res.CancelledAt.UTC().Format(time.RFC3339),
		AlreadyCancelled: res.AlreadyCancelled,
	})
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), claims.UserID(), parseLimit(r))
	if err != nil {
		status, msg := errorStatus("list appointments", err)
		writeError(w, status, msg)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, a := range appts {
		items = append(items, toItem(a, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appointments": items})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	v, err := h.svc.GetAppointment(r.Context(), claims.UserID(), id)
	if err != nil {
		status, msg := errorStatus("get appointment", err)
		writeError(w, status, msg)
		return
	}
	item := toItem(v.Appointment, v.Meeting)
	for _, rem := range v.Reminders {
		item.Reminders = append(item.Reminders, rem.RemindAt.UTC().Format(time.RFC3339))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "appointment": item})
}

func (h *AppointmentHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), claims.UserID(), 200)
	if err != nil {
		status, msg := errorStatus("build calendar", err)
		writeError(w, status, msg)
		return
	}
	body, err := calendar.Feed(appts, h.loc, time.Now())
	if err != nil {
		h.logger.Error("calendar encode failed", "user_id", claims.UserID(), "err", err)
		writeError(w, http.StatusInternalServerError, "failed to build calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="wellbook.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// errorStatus maps orchestrator errors onto HTTP statuses.
func errorStatus(action string, err error) (int, string) {
	switch {
	case errors.Is(err, booking.ErrNotFound):
		return http.StatusNotFound, "failed to " + action + ": appointment not found"
	case errors.Is(err, booking.ErrInvalidRequest):
		return http.StatusBadRequest, "failed to " + action + ": " + err.Error()
	case errors.Is(err, booking.ErrNotReschedulable):
		return http.StatusConflict, "failed to " + action + ": appointment is cancelled"
	default:
		return http.StatusInternalServerError, "failed to " + action
	}
}

func toItem(a model.Appointment, m *model.Meeting) appointmentItem {
	item := appointmentItem{
		AppointmentID:    a.ID,
		PractitionerID:   a.PractitionerID,
		PractitionerName: a.PractitionerName,
		Date:             a.Date,
		Time:             a.Time,
		DurationMinutes:  int(a.Duration() / time.Minute),
		SessionType:      a.SessionType,
		Status:           a.Status,
		Notes:            a.Notes,
		CancelReason:     a.CancelReason,
		CreatedAt:        a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if a.CancelledAt != nil {
		item.CancelledAt = a.CancelledAt.UTC().Format(time.RFC3339)
	}
	if m != nil {
		item.Meeting = &meetingItem{Platform: m.Platform, URL: m.URL, MeetingID: m.MeetingID, Password: m.Password, Status: m.Status}
	}
	return item
}

func parseLimit(r *http.Request) int {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	return limit
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func errorBody(msg string) []byte {
	body, _ := json.Marshal(map[string]any{"success": false, "error": msg})
	return body
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeBody(w, status, errorBody(msg))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build response")
		return
	}
	writeBody(w, status, body)
}

func writeBody(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
