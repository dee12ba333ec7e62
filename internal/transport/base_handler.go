package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/frahmantamala/care-access/internal"
	"github.com/frahmantamala/care-access/pkg/logger"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

var defaultValidator = validator.New()

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger   *slog.Logger
	Validate *validator.Validate
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg, Validate: defaultValidator}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteError writes an error response
func (h *BaseHandler) WriteError(w http.ResponseWriter, status int, message string) {
	h.Logger.Warn("http error", "status", status, "message", message)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errorResp := map[string]interface{}{
		"code":    status,
		"message": message,
	}

	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		h.Logger.Error("failed to encode error response", "error", err)
	}
}

// Log returns the handler logger with the request's fields (request_id, user_id).
func (h *BaseHandler) Log(r *http.Request) *slog.Logger {
	return logger.Attach(r.Context(), h.Logger)
}

// HandleServiceError maps AppErrors to their status and hides everything else behind a 500.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if appErr, ok := internal.IsAppError(err); ok {
		status, body := appErr.ToHTTPResponse()
		if status >= http.StatusInternalServerError {
			h.Log(r).Error("service error", "error", err, "path", r.URL.Path)
		}
		h.WriteJSON(w, status, body)
		return
	}
	h.Log(r).Error("unexpected service error", "error", err, "path", r.URL.Path)
	status, body := internal.NewInternalError("internal server error", err).ToHTTPResponse()
	h.WriteJSON(w, status, body)
}

// DecodeJSON reads a bounded JSON body into dst and runs struct validation on it.
func (h *BaseHandler) DecodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return internal.NewValidationError(fmt.Sprintf("invalid request body: %v", err), internal.ErrCodeValidationFailed)
	}
	v := h.Validate
	if v == nil {
		v = defaultValidator
	}
	if err := v.Struct(dst); err != nil {
		return validationFailure(err)
	}
	return nil
}

func validationFailure(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}
	details := internal.ValidationErrors{}
	for _, fe := range verrs {
		details.Errors = append(details.Errors, internal.ValidationError{
			Field:   strings.ToLower(fe.Field()),
			Message: fmt.Sprintf("%s failed on '%s'", fe.Field(), fe.Tag()),
			Code:    fe.Tag(),
		})
	}
	return internal.NewValidationError("Validation failed", internal.ErrCodeValidationFailed).WithDetails(details)
}

// RequireUser returns the authenticated user or writes a 401.
func (h *BaseHandler) RequireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID := internal.UserIDFromContext(r.Context())
	if userID == uuid.Nil {
		h.HandleServiceError(w, r, internal.ErrMissingToken)
		return uuid.Nil, false
	}
	return userID, true
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	return BearerToken(r)
}

func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authHeader[7:])
}

func ParseUserID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, internal.NewValidationFieldError("user_id", "user id must be a UUID", internal.ErrCodeInvalidUserID)
	}
	return id, nil
}

// ParseFacilityID reads an optional positive facility id; empty means no facility.
func ParseFacilityID(raw string) (*int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, internal.NewValidationFieldError("facility_id", "facility id must be a positive integer", internal.ErrCodeInvalidFacility)
	}
	return &id, nil
}
