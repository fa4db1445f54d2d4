package rpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

const (
	ServiceName     = "inventory.v1.InventorySync"
	ReconcileMethod = "/" + ServiceName + "/Reconcile"
)

type InventorySyncServer interface {
	Reconcile(ctx context.Context, req *domain.ReconcileRequest) (*domain.ReconcileResult, error)
}

func RegisterInventorySyncServer(s grpc.ServiceRegistrar, srv InventorySyncServer) {
	s.RegisterService(&InventorySyncServiceDesc, srv)
}

func reconcileHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(domain.ReconcileRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InventorySyncServer).Reconcile(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ReconcileMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InventorySyncServer).Reconcile(ctx, req.(*domain.ReconcileRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var InventorySyncServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InventorySyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Reconcile",
			Handler:    reconcileHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inventory/v1/inventory_sync",
}

// Client calls InventorySync using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Reconcile(ctx context.Context, in *domain.ReconcileRequest, opts ...grpc.CallOption) (*domain.ReconcileResult, error) {
	out := new(domain.ReconcileResult)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, ReconcileMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
