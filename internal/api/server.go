// Package api exposes the booking engine over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"escaperoom/internal/models"
	"escaperoom/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Bookings is the booking engine as seen by the API.
type Bookings interface {
	ListRooms(ctx context.Context) ([]models.Room, error)
	AvailableSlots(ctx context.Context, roomID int64, startDate, endDate string) ([]models.Slot, error)
	CreateBooking(ctx context.Context, req service.Requester, roomID int64, players int, date, clock string) (*models.Booking, error)
	GetBooking(ctx context.Context, req service.Requester, id int64) (*models.Booking, error)
	CancelBooking(ctx context.Context, req service.Requester, id int64) error
	SettlePayment(ctx context.Context, req service.Requester, id int64, status models.PaymentStatus, method string) (*models.Booking, error)
	ListMyActiveBookings(ctx context.Context, req service.Requester) ([]models.Booking, error)
	ListMyCompletedBookings(ctx context.Context, req service.Requester) ([]models.Booking, error)
	ListAllBookings(ctx context.Context, req service.Requester) ([]models.Booking, error)
}

// SweepRunner triggers an expiration sweep on demand.
type SweepRunner interface {
	RunNow(ctx context.Context) (service.SweepResult, error)
}

type Config struct {
	Address         string
	JWTSecret       string
	RateLimitPerSec float64
	RateLimitBurst  int
}

type HTTPServer struct {
	bookings Bookings
	sweeper  SweepRunner
	secret   []byte
	limiter  *userLimiter
	validate *validator.Validate
	logger   *zerolog.Logger
	server   *http.Server
}

func NewHTTPServer(cfg Config, bookings Bookings, sweeper SweepRunner, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "api").Logger()

	s := &HTTPServer{
		bookings: bookings,
		sweeper:  sweeper,
		secret:   []byte(cfg.JWTSecret),
		limiter:  newUserLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
		validate: newValidator(),
		logger:   &l,
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.server = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.withRequestLog(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return s
}

func (s *HTTPServer) routes(mux *http.ServeMux) {
	handle := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, s.authenticate(s.rateLimit(h)))
	}

	handle("GET /api/rooms", s.handleListRooms)
	handle("GET /api/rooms/{id}/slots", s.handleAvailableSlots)

	handle("POST /api/bookings", s.handleCreateBooking)
	handle("GET /api/bookings/{id}", s.handleGetBooking)
	handle("DELETE /api/bookings/{id}", s.handleCancelBooking)
	handle("POST /api/bookings/{id}/payment", s.handleSettlePayment)

	handle("GET /api/me/bookings", s.handleMyActiveBookings)
	handle("GET /api/me/bookings/completed", s.handleMyCompletedBookings)

	handle("GET /api/admin/bookings", s.handleAllBookings)
	handle("GET /api/admin/bookings/export", s.handleExportBookings)
	handle("POST /api/admin/sweep", s.handleSweep)
}

// Handler returns the root handler; used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown. http.ErrServerClosed is not an error.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *HTTPServer) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		s.logger.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

// writeServiceError maps service error kinds to HTTP statuses.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, service.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "permission_denied", err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	default:
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
