package resolver

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/layout"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region driver

// DriverStats counts what a driver did.
type DriverStats struct {
	Submitted  uint64
	Passes     uint64
	Applied    uint64
	Superseded uint64
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// OnApply is called with every result that becomes the current layout.
func OnApply(fn func(Result)) DriverOption {
	return func(d *Driver) { d.onApply = fn }
}

// OnSuperseded is called with results discarded because a newer snapshot
// arrived while they were computed.
func OnSuperseded(fn func(Result)) DriverOption {
	return func(d *Driver) { d.onSuperseded = fn }
}

// Driver owns the resolver state of one viewer session. Snapshots submitted
// while a pass runs are coalesced: only the latest one is resolved next, and
// a pass whose snapshot was superseded before it finished is discarded.
type Driver struct {
	resolver     *Resolver
	logger       *zap.Logger
	onApply      func(Result)
	onSuperseded func(Result)

	mu         sync.Mutex
	latest     session.Snapshot
	request    Request
	gen        uint64
	applied    Result
	appliedGen uint64
	changed    chan struct{}
	stats      DriverStats

	wake chan struct{}
}

// NewDriver creates a driver in the idle state.
func NewDriver(r *Resolver, opts ...DriverOption) *Driver {
	d := &Driver{
		resolver: r,
		logger:   r.logger,
		changed:  make(chan struct{}),
		wake:     make(chan struct{}, 1),
	}
	d.applied = Result{State: StateIdle, Layout: layout.Single("")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit records a new snapshot and returns its generation. It never
// blocks; Run picks the snapshot up.
func (d *Driver) Submit(s session.Snapshot) uint64 {
	d.mu.Lock()
	req := d.request
	d.mu.Unlock()
	return d.SubmitRequest(s, req)
}

// SubmitRequest is Submit with a protocol or stage request that also applies
// to later submissions.
func (d *Driver) SubmitRequest(s session.Snapshot, req Request) uint64 {
	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.latest = s
	d.request = req
	d.stats.Submitted++
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
	return gen
}

// Run resolves submitted snapshots until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		}

		d.mu.Lock()
		snap, req, gen := d.latest, d.request, d.gen
		current := d.appliedGen
		d.mu.Unlock()
		if gen == current {
			continue
		}

		res := d.resolver.Resolve(snap, req)

		d.mu.Lock()
		d.stats.Passes++
		if d.gen != gen {
			d.stats.Superseded++
			d.mu.Unlock()
			d.logger.Debug("discarding superseded pass",
				zap.String("pass_id", res.PassID),
				zap.Uint64("generation", gen),
			)
			if d.onSuperseded != nil {
				d.onSuperseded(res)
			}
			continue
		}
		d.applied = res
		d.appliedGen = gen
		d.stats.Applied++
		close(d.changed)
		d.changed = make(chan struct{})
		d.mu.Unlock()

		if d.onApply != nil {
			d.onApply(res)
		}
	}
}

// Current returns the applied result and its generation.
func (d *Driver) Current() (Result, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.applied, d.appliedGen
}

// Layout returns the applied layout.
func (d *Driver) Layout() layout.Resolved {
	res, _ := d.Current()
	return res.Layout
}

// WaitFor blocks until generation gen or a later one is applied.
func (d *Driver) WaitFor(ctx context.Context, gen uint64) (Result, error) {
	for {
		d.mu.Lock()
		if d.appliedGen >= gen {
			res := d.applied
			d.mu.Unlock()
			return res, nil
		}
		ch := d.changed
		d.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
	}
}

// Stats returns a copy of the counters.
func (d *Driver) Stats() DriverStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// #endregion driver
