package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ayo6706/paynxt/internal/api/middleware"
	"github.com/ayo6706/paynxt/internal/api/problem"
	"github.com/ayo6706/paynxt/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// RespondJSON writes a JSON response.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// RespondError writes an error response.
func RespondError(w http.ResponseWriter, r *http.Request, status int, problemType, message string) {
	if problemType != "" && problemType != "about:blank" && !strings.HasPrefix(problemType, "http") {
		problemType = problem.Type(problemType)
	}
	problem.Write(w, r, status, problemType, http.StatusText(status), message)
}

type errorMapping struct {
	target error
	status int
	slug   string
}

// serviceErrors maps core sentinel errors to problem responses. Order matters
// only where one error wraps another.
var serviceErrors = []errorMapping{
	{models.ErrInvalidAmount, http.StatusBadRequest, "request/invalid-amount"},
	{models.ErrInvalidInput, http.StatusBadRequest, "request/invalid-input"},
	{models.ErrSelfTransfer, http.StatusBadRequest, "transfer/self-transfer"},
	{models.ErrInsufficientFunds, http.StatusBadRequest, "transfer/insufficient-balance"},
	{models.ErrInvalidCredentials, http.StatusUnauthorized, "auth/invalid-credentials"},
	{models.ErrForbidden, http.StatusForbidden, "auth/insufficient-permissions"},
	{models.ErrAccountNotFound, http.StatusNotFound, "account/not-found"},
	{models.ErrRecipientNotFound, http.StatusNotFound, "account/recipient-not-found"},
	{models.ErrTransactionNotFound, http.StatusNotFound, "transaction/not-found"},
	{models.ErrPayRequestNotFound, http.StatusNotFound, "pay-request/not-found"},
	{models.ErrEmailTaken, http.StatusConflict, "account/email-taken"},
	{models.ErrConflict, http.StatusConflict, "state/conflict"},
}

// respondServiceError turns an error from the core into problem details.
// Unknown errors are logged and reported as 500 with a generic message.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			RespondError(w, r, m.status, m.slug, err.Error())
			return
		}
	}
	if status, pType, msg, ok := mapDBError(err); ok {
		RespondError(w, r, status, pType, msg)
		return
	}
	zap.L().Error(operation+" failed",
		zap.Error(err),
		zap.String("trace_id", middleware.TraceIDFromContext(r.Context())),
	)
	RespondError(w, r, http.StatusInternalServerError, "internal-server-error", fmt.Sprintf("failed to %s", operation))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-body", "Invalid request body")
		return false
	}
	return true
}

func requestActor(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	actorID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		RespondError(w, r, http.StatusUnauthorized, "auth/unauthorized", "Unauthorized")
		return uuid.Nil, false
	}
	return actorID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, raw, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, "Invalid "+strings.ReplaceAll(name, "-", " "))
		return uuid.Nil, false
	}
	return id, true
}

// queryInt reads a non-negative integer query parameter; absent means 0.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		RespondError(w, r, http.StatusBadRequest, "request/invalid-"+name, fmt.Sprintf("%s must be a non-negative integer", name))
		return 0, false
	}
	return v, true
}

func mapDBError(err error) (status int, problemType, message string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, "", "", false
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return http.StatusConflict, "db/unique-violation", "resource already exists", true
	case "23503": // foreign_key_violation
		return http.StatusBadRequest, "db/foreign-key-violation", "invalid reference", true
	case "23514": // check_violation
		return http.StatusBadRequest, "db/check-violation", "request violates data constraints", true
	case "23502": // not_null_violation
		return http.StatusBadRequest, "db/not-null-violation", "missing required field", true
	default:
		return 0, "", "", false
	}
}
