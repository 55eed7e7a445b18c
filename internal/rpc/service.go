package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region service-desc
// The Resolve service carries JSON-shaped payloads as google.protobuf.Struct
// so no generated code is needed on either side.

const (
	ServiceName      = "hangingprotocol.v1.Resolver"
	resolveFullName  = "/hangingprotocol.v1.Resolver/Resolve"
	resolverMetadata = "hangingprotocol/v1/resolver.proto"
)

// ResolverServiceServer is the server API for the Resolver service.
type ResolverServiceServer interface {
	Resolve(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ResolverServiceClient is the client API for the Resolver service.
type ResolverServiceClient interface {
	Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type resolverServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewResolverServiceClient wraps a connection.
func NewResolverServiceClient(cc grpc.ClientConnInterface) ResolverServiceClient {
	return &resolverServiceClient{cc: cc}
}

func (c *resolverServiceClient) Resolve(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, resolveFullName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func resolveHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResolverServiceServer).Resolve(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: resolveFullName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ResolverServiceServer).Resolve(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc describes the Resolver service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ResolverServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Resolve", Handler: resolveHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: resolverMetadata,
}

// #endregion service-desc
