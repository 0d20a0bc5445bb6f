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

	"github.com/vetdesk/vetdesk/libs/auth"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/booking"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/model"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/schedule"
)

// Booker is the slice of the booking service the HTTP layer calls.
type Booker interface {
	Book(ctx context.Context, req booking.BookRequest) (model.Appointment, error)
	Update(ctx context.Context, req booking.UpdateRequest) (model.Appointment, error)
	Cancel(ctx context.Context, id string, requester booking.Requester, reason string) (model.Appointment, error)
	Confirm(ctx context.Context, id string, requester booking.Requester) (model.Appointment, error)
	Complete(ctx context.Context, id string, requester booking.Requester, outcomeNotes, diagnosis, prescription string) (model.Appointment, error)
	MarkNoShow(ctx context.Context, id string, requester booking.Requester) (model.Appointment, error)
	Get(ctx context.Context, id string, requester booking.Requester) (model.Appointment, error)
	List(ctx context.Context, requester booking.Requester, f booking.ListFilter) ([]model.Appointment, error)
	Slots(ctx context.Context, providerID string, date time.Time, granularity time.Duration) ([]schedule.Interval, error)
}

// KeyVerifier is satisfied by the admin API key repository.
type KeyVerifier interface {
	Verify(ctx context.Context, rawKey string) (bool, error)
}

type SchedulingHandler struct {
	svc       Booker
	apiKeys   KeyVerifier
	logger    *slog.Logger
	jwtSecret string
}

func NewSchedulingHandler(svc Booker, apiKeys KeyVerifier, logger *slog.Logger, jwtSecret string) *SchedulingHandler {
	return &SchedulingHandler{
		svc:       svc,
		apiKeys:   apiKeys,
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

type bookRequest struct {
	ProviderID      string `json:"provider_id"`
	PatientID       string `json:"patient_id"`
	OwnerID         string `json:"owner_id"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Reason          string `json:"reason"`
}

type updateRequest struct {
	AppointmentID   string  `json:"appointment_id"`
	StartTime       *string `json:"start_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	Reason          *string `json:"reason"`
}

type cancelRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type transitionRequest struct {
	AppointmentID string `json:"appointment_id"`
	OutcomeNotes  string `json:"outcome_notes"`
	Diagnosis     string `json:"diagnosis"`
	Prescription  string `json:"prescription"`
}

type appointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	OwnerID         string `json:"owner_id"`
	ProviderID      string `json:"provider_id"`
	PatientID       string `json:"patient_id"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
	Fee             string `json:"fee,omitempty"`
	CancelledBy     string `json:"cancelled_by,omitempty"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	OutcomeNotes    string `json:"outcome_notes,omitempty"`
	Diagnosis       string `json:"diagnosis,omitempty"`
	Prescription    string `json:"prescription,omitempty"`
	CreatedAt       string `json:"created_at"`
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *SchedulingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(time.RFC3339, strings.TrimSpace(req.StartTime))
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	// Non-admins always book for themselves; admins may book on behalf of an
	// owner named in the body.
	ownerID := requester.ID
	if requester.Role == auth.RoleAdmin && strings.TrimSpace(req.OwnerID) != "" {
		ownerID = strings.TrimSpace(req.OwnerID)
	}

	appt, err := h.svc.Book(r.Context(), booking.BookRequest{
		OwnerID:         ownerID,
		ProviderID:      strings.TrimSpace(req.ProviderID),
		PatientID:       strings.TrimSpace(req.PatientID),
		Start:           start.UTC(),
		DurationMinutes: req.DurationMinutes,
		Reason:          strings.TrimSpace(req.Reason),
		IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toItem(appt))
}

func (h *SchedulingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	upd := booking.UpdateRequest{
		ID:          strings.TrimSpace(req.AppointmentID),
		Requester:   requester,
		NewDuration: req.DurationMinutes,
		Reason:      req.Reason,
	}
	if req.StartTime != nil {
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.StartTime))
		if err != nil {
			http.Error(w, "invalid start_time", http.StatusBadRequest)
			return
		}
		startUTC := start.UTC()
		upd.NewStart = &startUTC
	}

	appt, err := h.svc.Update(r.Context(), upd)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Cancel(r.Context(), strings.TrimSpace(req.AppointmentID), requester, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester, ok := h.staffRequester(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Confirm(r.Context(), strings.TrimSpace(req.AppointmentID), requester)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester, ok := h.staffRequester(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.Complete(
		r.Context(),
		strings.TrimSpace(req.AppointmentID),
		requester,
		strings.TrimSpace(req.OutcomeNotes),
		strings.TrimSpace(req.Diagnosis),
		strings.TrimSpace(req.Prescription),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) NoShow(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester, ok := h.staffRequester(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	appt, err := h.svc.MarkNoShow(r.Context(), strings.TrimSpace(req.AppointmentID), requester)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	id := strings.TrimSpace(r.URL.Query().Get("appointment_id"))
	appt, err := h.svc.Get(r.Context(), id, requester)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toItem(appt))
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	requester, ok := h.requester(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := booking.ListFilter{
		OwnerID:  strings.TrimSpace(q.Get("owner_id")),
		Status:   strings.TrimSpace(q.Get("status")),
		Upcoming: q.Get("when") == "upcoming",
		Past:     q.Get("when") == "past",
		Limit:    50,
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}

	appts, err := h.svc.List(r.Context(), requester, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, toItem(appt))
	}
	h.writeJSON(w, http.StatusOK, items)
}

// Slots is unauthenticated: pet owners browse availability before they sign
// in.
func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	providerID := strings.TrimSpace(q.Get("provider_id"))
	dateStr := strings.TrimSpace(q.Get("date"))
	if providerID == "" || dateStr == "" {
		http.Error(w, "provider_id and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	granularity := time.Duration(0)
	if raw := strings.TrimSpace(q.Get("granularity_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid granularity_minutes", http.StatusBadRequest)
			return
		}
		granularity = time.Duration(n) * time.Minute
	}

	slots, err := h.svc.Slots(r.Context(), providerID, date, granularity)
	if err != nil {
		h.writeError(w, err)
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	h.writeJSON(w, http.StatusOK, items)
}

// requester authenticates the caller from the Bearer token. On failure it
// writes a 401 and returns ok=false.
func (h *SchedulingHandler) requester(w http.ResponseWriter, r *http.Request) (booking.Requester, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(raw, "Bearer ") {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return booking.Requester{}, false
	}
	claims, err := auth.ParseAndVerifyHS256(strings.TrimSpace(strings.TrimPrefix(raw, "Bearer ")), h.jwtSecret)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return booking.Requester{}, false
	}
	return booking.Requester{ID: claims.Sub, Role: claims.Role}, true
}

// staffRequester additionally accepts an X-Api-Key header, used by back-office
// tooling that has no user token. A verified key acts as admin.
func (h *SchedulingHandler) staffRequester(w http.ResponseWriter, r *http.Request) (booking.Requester, bool) {
	if key := strings.TrimSpace(r.Header.Get("X-Api-Key")); key != "" && h.apiKeys != nil {
		ok, err := h.apiKeys.Verify(r.Context(), key)
		if err != nil {
			h.logger.Error("api key verification failed", "err", err)
			http.Error(w, "api key verification failed", http.StatusInternalServerError)
			return booking.Requester{}, false
		}
		if !ok {
			http.Error(w, "invalid api key", http.StatusUnauthorized)
			return booking.Requester{}, false
		}
		return booking.Requester{ID: "api-key", Role: auth.RoleAdmin}, true
	}
	return h.requester(w, r)
}

func (h *SchedulingHandler) writeError(w http.ResponseWriter, err error) {
	var (
		vErr    *booking.ValidationError
		nfErr   *booking.NotFoundError
		authErr *booking.AuthorizationError
		itErr   *booking.IneligibleTransitionError
	)
	switch {
	case errors.As(err, &vErr):
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": vErr.Error()})
	case errors.As(err, &nfErr):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": nfErr.Error()})
	case errors.As(err, &authErr):
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": authErr.Error()})
	case errors.Is(err, booking.ErrConflict):
		h.writeJSON(w, http.StatusConflict, map[string]string{"error": "time slot already booked"})
	case errors.As(err, &itErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": itErr.Error()})
	default:
		h.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *SchedulingHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func toItem(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID:   appt.ID,
		OwnerID:         appt.OwnerID,
		ProviderID:      appt.ProviderID,
		PatientID:       appt.PatientID,
		StartTime:       appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:         appt.EndTime().UTC().Format(time.RFC3339),
		DurationMinutes: appt.DurationMinutes,
		Status:          string(appt.Status),
		Reason:          appt.Reason,
		Fee:             appt.Fee,
		OutcomeNotes:    appt.OutcomeNotes,
		Diagnosis:       appt.Diagnosis,
		Prescription:    appt.Prescription,
		CreatedAt:       appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.Cancellation != nil {
		item.CancelledBy = string(appt.Cancellation.By)
		item.CancelReason = appt.Cancellation.Reason
		item.CancelledAt = appt.Cancellation.At.UTC().Format(time.RFC3339)
	}
	return item
}
