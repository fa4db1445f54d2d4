package remote

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/scan-sync/internal/adapter/rpc"
	"github.com/rl1809/scan-sync/internal/core/domain"
)

type GRPCDispatcher struct {
	client *rpc.Client
	token  string
}

func NewGRPCDispatcher(cc grpc.ClientConnInterface, token string) *GRPCDispatcher {
	return &GRPCDispatcher{client: rpc.NewClient(cc), token: token}
}

// Dial opens a plaintext connection. The connection is lazy, so an
// unreachable server surfaces on the first Reconcile.
func Dial(target string) (*grpc.ClientConn, error) {
	return grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
}

func (d *GRPCDispatcher) Reconcile(ctx context.Context, req domain.ReconcileRequest) (*domain.ReconcileResult, error) {
	var md []string
	if d.token != "" {
		md = append(md, "authorization", "Bearer "+d.token)
	}
	if req.MutationID != "" {
		md = append(md, "idempotency-key", req.MutationID)
	}
	if len(md) > 0 {
		ctx = metadata.AppendToOutgoingContext(ctx, md...)
	}

	res, err := d.client.Reconcile(ctx, &req)
	if err != nil {
		return nil, fromStatus(err)
	}
	return res, nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return fmt.Errorf("reconcile rpc: %w", err)
	}
	return &Error{Code: rpc.CodeFromGRPC(st.Code()), Message: st.Message()}
}
