package rpc

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/store"
)

// #region helpers
func newResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	reg := protocol.NewRegistry(nil)
	if _, err := protocol.LoadBuiltins(reg); err != nil {
		t.Fatalf("LoadBuiltins: %v", err)
	}
	return resolver.New(reg, resolver.DefaultConfig())
}

// startServer serves srv over an in-memory listener and returns a connected
// client.
func startServer(t *testing.T, srv *Server) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	srv.Register(gs)
	go gs.Serve(lis)
	t.Cleanup(gs.Stop)

	client, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func petSnapshot() session.Snapshot {
	return session.Snapshot{Studies: []session.Study{{
		StudyInstanceUID: "1.2.3",
		Series: []session.Series{
			{ID: "ct", Attributes: map[string]any{"Modality": "CT", "SeriesNumber": 1, "NumberOfFrames": 100}},
			{ID: "pt", Attributes: map[string]any{"Modality": "PT", "SeriesNumber": 2, "NumberOfFrames": 100}},
		},
	}}}
}

type mockResolverService struct {
	resp *structpb.Struct
	err  error
	got  *structpb.Struct
}

func (m *mockResolverService) Resolve(_ context.Context, in *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	m.got = in
	return m.resp, m.err
}

// #endregion helpers

// #region bufconn-tests
func TestResolve_OverGRPC(t *testing.T) {
	client := startServer(t, NewServer(newResolver(t)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := petSnapshot()
	reply, err := client.Resolve(ctx, snap, resolver.Request{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if reply.Decision != "resolved" || reply.Layout.ProtocolID != "pet-ct" {
		t.Fatalf("reply = %+v", reply)
	}
	if ids := reply.Layout.SeriesIDs(); len(ids) != 2 || ids[0] != "ct" || ids[1] != "pt" {
		t.Fatalf("series = %v", ids)
	}
	if reply.SnapshotHash != snap.Fingerprint() {
		t.Fatal("snapshot hash changed in transit")
	}
}

func TestResolve_StageRequestOverGRPC(t *testing.T) {
	client := startServer(t, NewServer(newResolver(t)))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	idx := 1
	reply, err := client.Resolve(ctx, petSnapshot(), resolver.Request{StageIndex: &idx})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if reply.Layout.StageID != "fusion" || reply.Layout.StageIndex != 1 {
		t.Fatalf("stage = %s (%d)", reply.Layout.StageID, reply.Layout.StageIndex)
	}
}

func TestResolve_IdleOverGRPC(t *testing.T) {
	client := startServer(t, NewServer(newResolver(t)))
	reply, err := client.Resolve(context.Background(), session.Snapshot{}, resolver.Request{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if reply.Decision != "idle" || len(reply.Layout.Viewports) != 1 {
		t.Fatalf("reply = %+v", reply)
	}
}

func TestResolve_RecordsToStore(t *testing.T) {
	st, err := store.NewStore(":memory:")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	defer st.Close()

	client := startServer(t, NewServer(newResolver(t), WithStore(st)))
	reply, err := client.Resolve(context.Background(), petSnapshot(), resolver.Request{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	cur, err := st.GetCurrent()
	if err != nil {
		t.Fatalf("GetCurrent: %v", err)
	}
	if cur.PassID != reply.PassID || cur.ProtocolID != "pet-ct" {
		t.Fatalf("stored pass = %+v", cur)
	}
	var n int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM provenance_log WHERE trigger_type = 'rpc'`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 provenance row, got %d", n)
	}
}

func TestServer_RejectsMalformedRequest(t *testing.T) {
	srv := NewServer(newResolver(t))
	bad, err := structpb.NewStruct(map[string]any{"session": "not an object"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = srv.Resolve(context.Background(), bad)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

// #endregion bufconn-tests

// #region mock-tests
func TestClient_PropagatesError(t *testing.T) {
	mock := &mockResolverService{err: errors.New("unavailable")}
	client := NewClientWithService(mock)

	_, err := client.Resolve(context.Background(), petSnapshot(), resolver.Request{ProtocolID: "default"})
	if err == nil {
		t.Fatal("expected error")
	}
	if mock.got == nil {
		t.Fatal("request not sent")
	}
	req := mock.got.AsMap()["request"].(map[string]any)
	if req["protocol_id"] != "default" {
		t.Fatalf("request options = %v", req)
	}
}

func TestClient_DecodesReply(t *testing.T) {
	resp, err := structpb.NewStruct(map[string]any{
		"decision":      "fallback",
		"snapshot_hash": "abc",
		"layout": map[string]any{
			"fallback": true,
			"rows":     1,
			"columns":  1,
			"viewports": []any{
				map[string]any{"viewport_id": "viewport-0", "resolved_series_id": "s1", "match_index": 0},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	client := NewClientWithService(&mockResolverService{resp: resp})

	reply, err := client.Resolve(context.Background(), session.Snapshot{}, resolver.Request{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reply.Layout.Fallback || reply.Layout.Viewports[0].SeriesID != "s1" || reply.SnapshotHash != "abc" {
		t.Fatalf("reply = %+v", reply)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("Close without connection: %v", err)
	}
}

// #endregion mock-tests
