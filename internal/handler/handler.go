// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/feast-seating/internal/mail"
	"github.com/Shivanand-hulikatti/feast-seating/internal/model"
	"github.com/Shivanand-hulikatti/feast-seating/internal/seating"
	"github.com/Shivanand-hulikatti/feast-seating/internal/service"
)

// Handler holds all HTTP handlers of the seating API.
type Handler struct {
	svc      *service.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// New constructs a Handler.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{svc: svc, validate: v, logger: logger}
}

// Mount registers the API routes on r. Admin routes sit behind the bearer
// token.
func (h *Handler) Mount(r chi.Router, adminToken string) {
	r.Get("/health", HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/register", h.CheckRegistration)
		r.Get("/tables", h.TableOccupancy)
		r.Post("/check-in", h.CheckIn)
		r.Get("/check-in", h.CheckInStatus)

		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminAuth(adminToken))
			r.Get("/attendees", h.ListAttendees)
			r.Get("/tables", h.ListTables)
			r.Put("/attendees/{tableID}/{seat}", h.UpdateAttendee)
			r.Delete("/attendees/{tableID}/{seat}", h.DeleteAttendee)
			r.Post("/attendees/{tableID}/{seat}/restore", h.RestoreAttendee)
			r.Get("/stats", h.Stats)
			r.Get("/activity", h.Activity)
			r.Post("/send-email", h.ResendConfirmation)
			r.Delete("/data", h.ResetAll)
		})
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// bind decodes and validates the request body. On failure the response is
// already written.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid input"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_without":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fe.Field()+" is too long")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// fail maps a service error onto a status code.
func (h *Handler) fail(w http.ResponseWriter, err error, op string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, service.ErrNotRegistered):
		writeError(w, http.StatusNotFound, "registration not found")
	case errors.Is(err, service.ErrAttendeeNotFound):
		writeError(w, http.StatusNotFound, "attendee not found")
	case errors.Is(err, seating.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "all tables are full, maximum capacity reached")
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrAlreadyDeleted),
		errors.Is(err, service.ErrNotDeleted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrRegistrationFailed), errors.Is(err, service.ErrRetriesExhausted):
		h.logger.Warn("gave up after conflicts", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "registration failed, please try again")
	case errors.Is(err, mail.ErrNotConfigured):
		writeError(w, http.StatusServiceUnavailable, "email service not configured")
	default:
		h.logger.Error("request failed", zap.String("op", op), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to "+op)
	}
}

func seatParams(r *http.Request) (string, int, error) {
	seat, err := strconv.Atoi(chi.URLParam(r, "seat"))
	if err != nil {
		return "", 0, fmt.Errorf("seat must be a number")
	}
	return chi.URLParam(r, "tableID"), seat, nil
}

// ─── Registration ─────────────────────────────────────────────────────────────

// Register handles POST /api/register
// Seats a new attendee, or returns the existing seat of a known email. With
// checkOnly set it only reports whether the email is registered.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !h.bind(w, r, &req) {
		return
	}

	if req.CheckOnly {
		h.writeExists(w, r, req.Email)
		return
	}

	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		h.fail(w, err, "register")
		return
	}

	status := http.StatusCreated
	if res.IsExisting {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// CheckRegistration handles GET /api/register?email=
func (h *Handler) CheckRegistration(w http.ResponseWriter, r *http.Request) {
	h.writeExists(w, r, r.URL.Query().Get("email"))
}

func (h *Handler) writeExists(w http.ResponseWriter, r *http.Request, email string) {
	res, found, err := h.svc.CheckExistingRegistration(r.Context(), email)
	if err != nil {
		h.fail(w, err, "check registration")
		return
	}
	writeJSON(w, http.StatusOK, model.ExistsResponse{Exists: found, Registration: res})
}

// TableOccupancy handles GET /api/tables
func (h *Handler) TableOccupancy(w http.ResponseWriter, r *http.Request) {
	tables, err := h.svc.ListTables(r.Context())
	if err != nil {
		h.fail(w, err, "list tables")
		return
	}
	out := make([]model.TableOccupancy, 0, len(tables))
	for _, t := range tables {
		out = append(out, t.Occupancy())
	}
	writeJSON(w, http.StatusOK, out)
}

// ListTables handles GET /api/admin/tables
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.svc.ListTables(r.Context())
	if err != nil {
		h.fail(w, err, "list tables")
		return
	}
	if tables == nil {
		tables = []model.Table{}
	}
	writeJSON(w, http.StatusOK, tables)
}

// ─── Check-in ─────────────────────────────────────────────────────────────────

// CheckIn handles POST /api/check-in
// A repeat check-in answers 409 with the original check-in time.
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req model.EmailRequest
	if !h.bind(w, r, &req) {
		return
	}

	reg, err := h.svc.CheckIn(r.Context(), req.Email)
	if errors.Is(err, service.ErrAlreadyCheckedIn) {
		writeJSON(w, http.StatusConflict, model.CheckInResponse{
			Registration:     reg,
			AlreadyCheckedIn: true,
			Message:          "Already checked in",
		})
		return
	}
	if err != nil {
		h.fail(w, err, "check in")
		return
	}

	writeJSON(w, http.StatusOK, model.CheckInResponse{
		Registration: reg,
		Message:      fmt.Sprintf("Welcome, %s! Table %d, seat %d.", reg.Name, reg.TableNumber, reg.SeatNumber),
	})
}

// CheckInStatus handles GET /api/check-in?email=
func (h *Handler) CheckInStatus(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.CheckInStatus(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.fail(w, err, "get check-in status")
		return
	}
	writeJSON(w, http.StatusOK, model.CheckInResponse{Registration: reg, AlreadyCheckedIn: reg.CheckedIn})
}

// ─── Admin ────────────────────────────────────────────────────────────────────

// ListAttendees handles GET /api/admin/attendees?includeDeleted=true
func (h *Handler) ListAttendees(w http.ResponseWriter, r *http.Request) {
	includeDeleted, _ := strconv.ParseBool(r.URL.Query().Get("includeDeleted"))

	regs, err := h.svc.ListAttendees(r.Context(), includeDeleted)
	if err != nil {
		h.fail(w, err, "list attendees")
		return
	}
	writeJSON(w, http.StatusOK, regs)
}

// UpdateAttendee handles PUT /api/admin/attendees/{tableID}/{seat}
func (h *Handler) UpdateAttendee(w http.ResponseWriter, r *http.Request) {
	tableID, seat, err := seatParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var patch model.AttendeePatch
	if !h.bind(w, r, &patch) {
		return
	}

	reg, err := h.svc.UpdateAttendee(r.Context(), tableID, seat, patch)
	if err != nil {
		h.fail(w, err, "update attendee")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// DeleteAttendee handles DELETE /api/admin/attendees/{tableID}/{seat}
func (h *Handler) DeleteAttendee(w http.ResponseWriter, r *http.Request) {
	tableID, seat, err := seatParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg, err := h.svc.DeleteAttendee(r.Context(), tableID, seat)
	if err != nil {
		h.fail(w, err, "delete attendee")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// RestoreAttendee handles POST /api/admin/attendees/{tableID}/{seat}/restore
func (h *Handler) RestoreAttendee(w http.ResponseWriter, r *http.Request) {
	tableID, seat, err := seatParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reg, err := h.svc.RestoreAttendee(r.Context(), tableID, seat)
	if err != nil {
		h.fail(w, err, "restore attendee")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

// Stats handles GET /api/admin/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Stats(r.Context())
	if err != nil {
		h.fail(w, err, "get stats")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Activity handles GET /api/admin/activity?action=&limit=
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be a number")
			return
		}
		limit = n
	}

	entries, err := h.svc.Activity(r.Context(), q.Get("action"), limit)
	if err != nil {
		h.fail(w, err, "list activity")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// ResendConfirmation handles POST /api/admin/send-email
func (h *Handler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	var req model.EmailRequest
	if !h.bind(w, r, &req) {
		return
	}

	id, reg, err := h.svc.ResendConfirmation(r.Context(), req.Email)
	if err != nil {
		h.fail(w, err, "send email")
		return
	}
	writeJSON(w, http.StatusOK, model.ResendResponse{MessageID: id, Registration: reg})
}

// ResetAll handles DELETE /api/admin/data
func (h *Handler) ResetAll(w http.ResponseWriter, r *http.Request) {
	tables, activities, err := h.svc.ResetAll(r.Context())
	if err != nil {
		h.fail(w, err, "reset data")
		return
	}
	writeJSON(w, http.StatusOK, model.ResetResponse{Tables: tables, Activities: activities})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
