package rpc

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/logging"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/store"
)

// #region server
// Server answers Resolve calls with a shared resolver. Each call is
// independent; the server keeps no session state.
type Server struct {
	resolver *resolver.Resolver
	store    *store.Store
	logger   *zap.Logger
}

// ServerOption customizes a Server.
type ServerOption func(*Server)

// WithServerLogger sets the logger.
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(s *Server) { s.logger = logging.OrNop(l) }
}

// WithStore records every pass and its provenance row.
func WithStore(st *store.Store) ServerOption {
	return func(s *Server) { s.store = st }
}

// NewServer creates a server around r.
func NewServer(r *resolver.Resolver, opts ...ServerOption) *Server {
	s := &Server{resolver: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches the service to a gRPC server.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// Resolve implements ResolverServiceServer.
func (s *Server) Resolve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req RequestPayload
	if err := fromStruct(in, &req); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "decode request: %v", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, status.FromContextError(err).Err()
	}

	res := s.resolver.Resolve(req.Session, req.Request.toRequest())
	if s.store != nil {
		s.record(res)
	}

	out, err := toStruct(Reply{
		PassID:       res.PassID,
		Decision:     res.Decision(),
		SnapshotHash: res.SnapshotHash,
		Layout:       res.Layout,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode reply: %v", err)
	}
	return out, nil
}

func (s *Server) record(res resolver.Result) {
	if _, err := s.store.RecordPass(store.NewPassRecord(res.PassID, res.Layout, res.SnapshotHash, res.Decision())); err != nil {
		s.logger.Warn("record pass failed", zap.String("pass_id", res.PassID), zap.Error(err))
		return
	}
	if err := logging.LogRecord(s.store.DB(), "rpc", res.Decision(), "", res.Record(s.resolver.Config())); err != nil {
		s.logger.Warn("provenance log failed", zap.String("pass_id", res.PassID), zap.Error(err))
	}
}

// #endregion server
