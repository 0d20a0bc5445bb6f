package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vetdesk/vetdesk/libs/auth"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/booking"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/model"
	"github.com/vetdesk/vetdesk/services/scheduling-service/internal/schedule"
)

const testSecret = "test-secret"

type stubBooker struct {
	bookErr   error
	cancelErr error
	slots     []schedule.Interval
	gotBook   booking.BookRequest
}

func (s *stubBooker) Book(_ context.Context, req booking.BookRequest) (model.Appointment, error) {
	s.gotBook = req
	if s.bookErr != nil {
		return model.Appointment{}, s.bookErr
	}
	return model.Appointment{
		ID:              "appt-1",
		OwnerID:         req.OwnerID,
		ProviderID:      req.ProviderID,
		PatientID:       req.PatientID,
		StartTime:       req.Start,
		DurationMinutes: req.DurationMinutes,
		Status:          model.StatusPending,
	}, nil
}

func (s *stubBooker) Update(context.Context, booking.UpdateRequest) (model.Appointment, error) {
	return model.Appointment{}, nil
}

func (s *stubBooker) Cancel(context.Context, string, booking.Requester, string) (model.Appointment, error) {
	if s.cancelErr != nil {
		return model.Appointment{}, s.cancelErr
	}
	return model.Appointment{ID: "appt-1", Status: model.StatusCancelled}, nil
}

func (s *stubBooker) Confirm(context.Context, string, booking.Requester) (model.Appointment, error) {
	return model.Appointment{}, nil
}

func (s *stubBooker) Complete(context.Context, string, booking.Requester, string, string, string) (model.Appointment, error) {
	return model.Appointment{}, nil
}

func (s *stubBooker) MarkNoShow(context.Context, string, booking.Requester) (model.Appointment, error) {
	return model.Appointment{}, nil
}

func (s *stubBooker) Get(context.Context, string, booking.Requester) (model.Appointment, error) {
	return model.Appointment{}, nil
}

func (s *stubBooker) List(context.Context, booking.Requester, booking.ListFilter) ([]model.Appointment, error) {
	return nil, nil
}

func (s *stubBooker) Slots(context.Context, string, time.Time, time.Duration) ([]schedule.Interval, error) {
	return s.slots, nil
}

func newTestHandler(svc *stubBooker) *SchedulingHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSchedulingHandler(svc, nil, logger, testSecret)
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.Claims{
		Sub:  sub,
		Role: role,
		Exp:  time.Now().Add(time.Hour).Unix(),
		Iat:  time.Now().Unix(),
	}, testSecret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	return tok
}

func TestBook_RequiresAuth(t *testing.T) {
	h := newTestHandler(&stubBooker{})
	body := `{"provider_id":"vet-1","patient_id":"pet-1","start_time":"2031-03-03T10:00:00Z","duration_minutes":30}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer not.a.token")
	rec = httptest.NewRecorder()
	h.Book(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", rec.Code)
	}
}

func TestBook_OwnerComesFromToken(t *testing.T) {
	svc := &stubBooker{}
	h := newTestHandler(svc)

	body := `{"provider_id":"vet-1","patient_id":"pet-1","owner_id":"someone-else","start_time":"2031-03-03T10:00:00Z","duration_minutes":30}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token(t, "owner-1", auth.RoleOwner))
	req.Header.Set("Idempotency-Key", "k-1")
	rec := httptest.NewRecorder()
	h.Book(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.gotBook.OwnerID != "owner-1" {
		t.Fatalf("owner must come from the token, got %q", svc.gotBook.OwnerID)
	}
	if svc.gotBook.IdempotencyKey != "k-1" {
		t.Fatalf("idempotency key not forwarded, got %q", svc.gotBook.IdempotencyKey)
	}
}

func TestBook_AdminMayBookOnBehalf(t *testing.T) {
	svc := &stubBooker{}
	h := newTestHandler(svc)

	body := `{"provider_id":"vet-1","patient_id":"pet-1","owner_id":"owner-7","start_time":"2031-03-03T10:00:00Z","duration_minutes":30}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token(t, "admin-1", auth.RoleAdmin))
	rec := httptest.NewRecorder()
	h.Book(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.gotBook.OwnerID != "owner-7" {
		t.Fatalf("admin should book for the named owner, got %q", svc.gotBook.OwnerID)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", &booking.ValidationError{Field: "start_time", Rule: "must be in the future"}, http.StatusBadRequest},
		{"not found", &booking.NotFoundError{Resource: "provider", ID: "x"}, http.StatusNotFound},
		{"authorization", &booking.AuthorizationError{Reason: "nope"}, http.StatusForbidden},
		{"conflict", booking.ErrConflict, http.StatusConflict},
		{"transition", &booking.IneligibleTransitionError{From: model.StatusCancelled, Reason: "closed"}, http.StatusUnprocessableEntity},
		{"infra", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newTestHandler(&stubBooker{bookErr: tc.err})
			body := `{"provider_id":"vet-1","patient_id":"pet-1","start_time":"2031-03-03T10:00:00Z","duration_minutes":30}`
			req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
			req.Header.Set("Authorization", "Bearer "+token(t, "owner-1", auth.RoleOwner))
			rec := httptest.NewRecorder()
			h.Book(rec, req)
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rec.Code)
			}
		})
	}
}

func TestSlots_PublicAndValidated(t *testing.T) {
	day := time.Date(2031, 3, 3, 0, 0, 0, 0, time.UTC)
	svc := &stubBooker{slots: []schedule.Interval{
		{Start: day.Add(9 * time.Hour), End: day.Add(9*time.Hour + 30*time.Minute)},
	}}
	h := newTestHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=vet-1&date=2031-03-03", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 without auth, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "2031-03-03T09:00:00Z") {
		t.Fatalf("slot missing from response: %s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=vet-1", nil)
	rec = httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without date, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?provider_id=vet-1&date=not-a-date", nil)
	rec = httptest.NewRecorder()
	h.Slots(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}

func TestCancel_MethodGuard(t *testing.T) {
	h := newTestHandler(&stubBooker{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments/cancel", nil)
	rec := httptest.NewRecorder()
	h.Cancel(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
