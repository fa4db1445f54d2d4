package rpc

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/core/service"
	"github.com/rl1809/scan-sync/internal/port"
)

// Error codes carried in the { "error": { "code", "message" } } envelope.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeDuplicateInFlight = "DUPLICATE_IN_FLIGHT"
	CodeConflict          = "CONFLICT"
	CodeSyncFailed        = "SYNC_INVENTORY_ERROR"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// Classify maps a reconcile error to its envelope code, HTTP status and
// gRPC status code.
func Classify(err error) (string, int, codes.Code) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return CodeValidation, http.StatusBadRequest, codes.InvalidArgument
	case errors.Is(err, port.ErrUnauthorized):
		return CodeUnauthorized, http.StatusUnauthorized, codes.Unauthenticated
	case errors.Is(err, service.ErrDuplicateInFlight):
		return CodeDuplicateInFlight, http.StatusConflict, codes.AlreadyExists
	case errors.Is(err, service.ErrConflictRetriesExhausted):
		return CodeConflict, http.StatusConflict, codes.Aborted
	default:
		return CodeSyncFailed, http.StatusInternalServerError, codes.Internal
	}
}

// CodeFromGRPC is the inverse of Classify for clients.
func CodeFromGRPC(c codes.Code) string {
	switch c {
	case codes.InvalidArgument:
		return CodeValidation
	case codes.Unauthenticated:
		return CodeUnauthorized
	case codes.AlreadyExists:
		return CodeDuplicateInFlight
	case codes.Aborted:
		return CodeConflict
	default:
		return CodeSyncFailed
	}
}
