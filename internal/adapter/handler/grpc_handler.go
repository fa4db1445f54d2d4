package handler

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/scan-sync/internal/adapter/auth"
	"github.com/rl1809/scan-sync/internal/adapter/rpc"
	"github.com/rl1809/scan-sync/internal/core/domain"
	"github.com/rl1809/scan-sync/internal/core/service"
	"github.com/rl1809/scan-sync/internal/port"
)

// IdempotencyMetadataKey carries the mutation id when the message has none.
const IdempotencyMetadataKey = "idempotency-key"

type GRPCHandler struct {
	reconcileService *service.ReconcileService
	logger           *slog.Logger
}

var _ rpc.InventorySyncServer = (*GRPCHandler)(nil)

func NewGRPCHandler(reconcileService *service.ReconcileService, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{reconcileService: reconcileService, logger: logger}
}

func (h *GRPCHandler) Reconcile(ctx context.Context, req *domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	if req.MutationID == "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get(IdempotencyMetadataKey); len(v) > 0 {
				req.MutationID = v[0]
			}
		}
	}

	res, err := h.reconcileService.Reconcile(ctx, UserFromContext(ctx), *req)
	if err != nil {
		_, _, code := rpc.Classify(err)
		if code == codes.Internal {
			h.logger.Error("reconcile rpc failed", "error", err)
		}
		return nil, status.Error(code, err.Error())
	}
	return res, nil
}

// AuthInterceptor verifies the bearer token in the "authorization" metadata
// and stores the user id in the handler context.
func AuthInterceptor(verifier port.TokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		var token string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if v := md.Get("authorization"); len(v) > 0 {
				token = auth.BearerToken(v[0])
			}
		}
		userID, err := verifier.Verify(ctx, token)
		if err != nil {
			_, _, code := rpc.Classify(err)
			return nil, status.Error(code, err.Error())
		}
		return next(WithUser(ctx, userID), req)
	}
}
