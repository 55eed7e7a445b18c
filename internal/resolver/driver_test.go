package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func seriesSnapshot(ids ...string) session.Snapshot {
	st := session.Study{StudyInstanceUID: "s"}
	for _, id := range ids {
		st.Series = append(st.Series, imageSeries(id, nil))
	}
	return snapshot(st)
}

// blockingIDs blocks the first pass until release is closed.
func blockingIDs(started chan<- struct{}, release <-chan struct{}) Option {
	var once sync.Once
	return WithIDGenerator(func() string {
		first := false
		once.Do(func() { first = true })
		if first {
			close(started)
			<-release
		}
		return "pass"
	})
}

func runDriver(t *testing.T, d *Driver) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return func() {
		stop()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	}
}

func TestDriver_StartsIdle(t *testing.T) {
	d := NewDriver(New(newRegistry(t, catchAll()), DefaultConfig(), fixedIDs()))
	res, gen := d.Current()
	if gen != 0 || res.State != StateIdle || len(res.Layout.Viewports) != 1 {
		t.Fatalf("initial state = %+v (gen %d)", res, gen)
	}
}

func TestDriver_AppliesLatest(t *testing.T) {
	var applied []string
	var mu sync.Mutex
	d := NewDriver(New(newRegistry(t, catchAll()), DefaultConfig(), fixedIDs()),
		OnApply(func(r Result) {
			mu.Lock()
			applied = append(applied, r.Layout.SeriesIDs()[0])
			mu.Unlock()
		}))
	stop := runDriver(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gen := d.Submit(seriesSnapshot("a"))
	res, err := d.WaitFor(ctx, gen)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if res.Layout.ProtocolID != "default" || res.Layout.SeriesIDs()[0] != "a" {
		t.Fatalf("layout = %+v", res.Layout)
	}

	gen = d.Submit(session.Snapshot{})
	res, err = d.WaitFor(ctx, gen)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if res.State != StateIdle {
		t.Fatalf("unloading every study should return to idle, got %s", res.State)
	}
	stop()

	mu.Lock()
	defer mu.Unlock()
	if len(applied) != 2 || applied[0] != "a" || applied[1] != "" {
		t.Fatalf("applied = %v", applied)
	}
}

// Snapshots submitted while a pass runs collapse into one pass over the
// newest, and the in-flight pass is discarded.
func TestDriver_CoalescesSnapshots(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var superseded int
	var mu sync.Mutex
	d := NewDriver(
		New(newRegistry(t, catchAll()), DefaultConfig(), blockingIDs(started, release)),
		OnSuperseded(func(Result) {
			mu.Lock()
			superseded++
			mu.Unlock()
		}),
	)
	stop := runDriver(t, d)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d.Submit(seriesSnapshot("s1"))
	select {
	case <-started:
	case <-ctx.Done():
		t.Fatal("first pass never started")
	}
	d.Submit(seriesSnapshot("s1", "s2"))
	s3 := seriesSnapshot("s1", "s2", "s3")
	gen := d.Submit(s3)
	close(release)

	res, err := d.WaitFor(ctx, gen)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if res.SnapshotHash != s3.Fingerprint() {
		t.Fatal("applied result is not for the latest snapshot")
	}

	stats := d.Stats()
	if stats.Submitted != 3 || stats.Passes != 2 || stats.Superseded != 1 || stats.Applied != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	mu.Lock()
	defer mu.Unlock()
	if superseded != 1 {
		t.Fatalf("OnSuperseded called %d times", superseded)
	}
}

func TestDriver_WaitForHonoursContext(t *testing.T) {
	d := NewDriver(New(newRegistry(t, catchAll()), DefaultConfig(), fixedIDs()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.WaitFor(ctx, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitFor err = %v", err)
	}
}

func TestDriver_StickyRequest(t *testing.T) {
	first, second := catchAllWithID("first"), catchAllWithID("second")
	d := NewDriver(New(newRegistry(t, first, second), DefaultConfig(), fixedIDs()))
	stop := runDriver(t, d)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d.SubmitRequest(seriesSnapshot("a"), Request{ProtocolID: "second"})
	gen := d.Submit(seriesSnapshot("a", "b"))
	res, err := d.WaitFor(ctx, gen)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	if res.Layout.ProtocolID != "second" {
		t.Fatalf("request not carried to later submissions, got %s", res.Layout.ProtocolID)
	}
}
