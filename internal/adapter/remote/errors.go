// Package remote dispatches reconcile requests to the reconciliation server
// over HTTP or gRPC.
package remote

import (
	"fmt"

	"github.com/rl1809/scan-sync/internal/adapter/rpc"
)

// Error is a failure reported by the server in an error envelope.
type Error struct {
	Code    string
	Message string
	Status  int // HTTP status, 0 over gRPC
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s (%d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("remote %s: %s", e.Code, e.Message)
}

// Retryable is false when resending the same request cannot succeed.
func (e *Error) Retryable() bool {
	switch e.Code {
	case rpc.CodeValidation, rpc.CodeUnauthorized:
		return false
	default:
		return true
	}
}
