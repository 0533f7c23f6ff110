package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"escaperoom/internal/models"
	"escaperoom/internal/report"
	"escaperoom/internal/service"

	"github.com/go-playground/validator/v10"
)

// CreateBookingRequest is the body of POST /api/bookings.
type CreateBookingRequest struct {
	RoomID          int64  `json:"room_id" validate:"required,gt=0"`
	NumberOfPlayers int    `json:"number_of_players" validate:"required,gt=0"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required"`
}

// SettlePaymentRequest is the body of POST /api/bookings/{id}/payment.
type SettlePaymentRequest struct {
	PaymentStatus string `json:"payment_status" validate:"required,oneof=completed cancelled"`
	PaymentMethod string `json:"payment_method" validate:"omitempty,max=64"`
}

// SlotsResponse is the body of GET /api/rooms/{id}/slots.
type SlotsResponse struct {
	RoomID    int64         `json:"room_id"`
	StartDate string        `json:"start_date"`
	EndDate   string        `json:"end_date"`
	Slots     []models.Slot `json:"slots"`
}

type sweepResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	service.SweepResult
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", r.PathValue("id"))
	}
	return id, nil
}

// decodeBody decodes a JSON body into dst and validates it.
func (s *HTTPServer) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "datetime":
			msgs = append(msgs, fe.Field()+" must be YYYY-MM-DD")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		}
	}
	return strings.Join(msgs, "; ")
}

// GET /api/rooms
func (s *HTTPServer) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.bookings.ListRooms(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}

// GET /api/rooms/{id}/slots?start_date=YYYY-MM-DD&end_date=YYYY-MM-DD
func (s *HTTPServer) handleAvailableSlots(w http.ResponseWriter, r *http.Request) {
	roomID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	q := r.URL.Query()
	start, end := q.Get("start_date"), q.Get("end_date")
	if start == "" || end == "" {
		writeError(w, http.StatusBadRequest, "invalid_argument", "start_date and end_date are required")
		return
	}

	list, err := s.bookings.AvailableSlots(r.Context(), roomID, start, end)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotsResponse{RoomID: roomID, StartDate: start, EndDate: end, Slots: list})
}

// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	b, err := s.bookings.CreateBooking(r.Context(), requester(r), req.RoomID, req.NumberOfPlayers, req.Date, req.Time)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// GET /api/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	b, err := s.bookings.GetBooking(r.Context(), requester(r), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// DELETE /api/bookings/{id}
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	if err := s.bookings.CancelBooking(r.Context(), requester(r), id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// POST /api/bookings/{id}/payment
func (s *HTTPServer) handleSettlePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	var req SettlePaymentRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	b, err := s.bookings.SettlePayment(r.Context(), requester(r), id,
		models.PaymentStatus(req.PaymentStatus), strings.TrimSpace(req.PaymentMethod))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *HTTPServer) writeBookings(w http.ResponseWriter, r *http.Request, list []models.Booking, err error) {
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": list})
}

// GET /api/me/bookings
func (s *HTTPServer) handleMyActiveBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookings.ListMyActiveBookings(r.Context(), requester(r))
	s.writeBookings(w, r, list, err)
}

// GET /api/me/bookings/completed
func (s *HTTPServer) handleMyCompletedBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookings.ListMyCompletedBookings(r.Context(), requester(r))
	s.writeBookings(w, r, list, err)
}

// GET /api/admin/bookings
func (s *HTTPServer) handleAllBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookings.ListAllBookings(r.Context(), requester(r))
	s.writeBookings(w, r, list, err)
}

// GET /api/admin/bookings/export
func (s *HTTPServer) handleExportBookings(w http.ResponseWriter, r *http.Request) {
	list, err := s.bookings.ListAllBookings(r.Context(), requester(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	rooms, err := s.bookings.ListRooms(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteBookings(&buf, list, rooms); err != nil {
		s.writeServiceError(w, r, fmt.Errorf("build export: %w", err))
		return
	}

	name := fmt.Sprintf("bookings_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// POST /api/admin/sweep
func (s *HTTPServer) handleSweep(w http.ResponseWriter, r *http.Request) {
	if !requester(r).IsAdmin {
		writeError(w, http.StatusForbidden, "permission_denied", "admin only")
		return
	}
	if s.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "sweeper is not configured")
		return
	}

	result, err := s.sweeper.RunNow(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, sweepResponse{OK: true, SweepResult: result})
	case errors.Is(err, service.ErrPartialFailure):
		writeJSON(w, http.StatusOK, sweepResponse{OK: false, Error: err.Error(), SweepResult: result})
	default:
		s.writeServiceError(w, r, err)
	}
}
