package resolver

import (
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/layout"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/logging"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/matcher"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/scorer"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/stage"
)

// #region resolver
// Resolver picks a protocol and stage for a session and assembles its
// layout. A Resolver holds no per-session state; Driver adds that.
type Resolver struct {
	registry *protocol.Registry
	attrs    *session.Attributes
	config   Config
	logger   *zap.Logger
	newID    func() string
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logging.OrNop(l) }
}

// WithAttributes replaces the custom attribute registry.
func WithAttributes(a *session.Attributes) Option {
	return func(r *Resolver) { r.attrs = a }
}

// WithIDGenerator replaces the pass id source.
func WithIDGenerator(fn func() string) Option {
	return func(r *Resolver) { r.newID = fn }
}

// New creates a resolver over a registry.
func New(registry *protocol.Registry, config Config, opts ...Option) *Resolver {
	r := &Resolver{
		registry: registry,
		attrs:    session.NewAttributes(),
		config:   config,
		logger:   zap.NewNop(),
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the resolver configuration.
func (r *Resolver) Config() Config {
	return r.config
}

// Registry returns the protocol registry.
func (r *Resolver) Registry() *protocol.Registry {
	return r.registry
}

// #endregion resolver

// #region resolve

// Resolve runs one pass over a snapshot. It never fails: when no protocol
// can be activated the result is the single-viewport default layout showing
// the most recently loaded series.
func (r *Resolver) Resolve(snap session.Snapshot, req Request) Result {
	passID := r.newID()
	view := session.Freeze(snap, r.attrs)
	res := Result{
		PassID:       passID,
		SnapshotHash: snap.Fingerprint(),
		StudyCount:   len(view.Studies),
		SeriesCount:  len(view.Candidates),
	}

	if view.Empty() {
		res.State = StateIdle
		res.Layout = layout.Single("")
		return res
	}
	res.State = StateResolved

	protocols := r.registry.Protocols()
	res.Decisions = scorer.ScoreAll(protocols, view)

	for _, i := range r.ranked(protocols, res.Decisions, req) {
		p := protocols[i]
		matches := matcher.MatchAll(p, view)
		evals := stage.Evaluate(p, matches)
		idx, ok := stage.Choose(evals, stage.Request{StageID: req.StageID, StageIndex: req.StageIndex})
		if !ok {
			r.logger.Debug("protocol not activatable",
				zap.String("pass_id", passID),
				zap.String("protocol_id", p.ID),
			)
			continue
		}

		res.Matches = matches
		res.Stages = evals
		res.Layout = layout.Assemble(p, idx, matches, layout.Options{DeduplicateFallback: r.config.DeduplicateFallback})
		res.Layout.Score = res.Decisions[i].Score
		r.logger.Debug("layout resolved",
			zap.String("pass_id", passID),
			zap.String("protocol_id", p.ID),
			zap.String("stage_id", res.Layout.StageID),
			zap.Float64("score", res.Layout.Score),
		)
		return res
	}

	seriesID := ""
	if c, ok := view.MostRecent(); ok {
		seriesID = c.SeriesID
	}
	r.logger.Info("no protocol activatable, using default layout",
		zap.String("pass_id", passID),
		zap.Int("protocols", len(protocols)),
		zap.Int("series", len(view.Candidates)),
	)
	res.Layout = layout.Single(seriesID)
	res.Layout.Fallback = true
	return res
}

// ranked returns the indexes of eligible protocols, best first. A forced
// protocol that is registered and not disqualified goes first; the rest
// follow in case it has no stage to activate.
func (r *Resolver) ranked(ps []*protocol.Protocol, ds []scorer.Decision, req Request) []int {
	forced := -1
	if req.ProtocolID != "" {
		for i, p := range ps {
			if p.ID == req.ProtocolID && !ds[i].Disqualified {
				forced = i
				break
			}
		}
		if forced < 0 {
			r.logger.Warn("requested protocol unavailable, ranking all protocols",
				zap.String("protocol_id", req.ProtocolID),
			)
		}
	}

	var eligible []int
	for i, d := range ds {
		if i != forced && !d.Disqualified && d.Score >= r.config.MinimumScore {
			eligible = append(eligible, i)
		}
	}
	sort.SliceStable(eligible, func(a, b int) bool {
		da, db := ds[eligible[a]], ds[eligible[b]]
		if da.Score != db.Score {
			return da.Score > db.Score
		}
		if r.config.TieBreak == TieBreakProtocolID {
			return da.ProtocolID < db.ProtocolID
		}
		return eligible[a] < eligible[b]
	})
	if forced >= 0 {
		return append([]int{forced}, eligible...)
	}
	return eligible
}

// Navigate moves a resolved result to the next (step > 0) or previous
// (step < 0) stage that is not disabled. It reports false when there is no
// such stage or the result did not come from a protocol.
func (r *Resolver) Navigate(res Result, step int) (Result, bool) {
	if res.State != StateResolved || res.Layout.Fallback || step == 0 {
		return res, false
	}
	p, ok := r.registry.Get(res.Layout.ProtocolID)
	if !ok {
		return res, false
	}

	var idx int
	if step > 0 {
		idx, ok = stage.Next(res.Stages, res.Layout.StageIndex)
	} else {
		idx, ok = stage.Previous(res.Stages, res.Layout.StageIndex)
	}
	if !ok {
		return res, false
	}

	out := res
	out.Layout = layout.Assemble(p, idx, res.Matches, layout.Options{DeduplicateFallback: r.config.DeduplicateFallback})
	out.PassID = r.newID()
	out.Layout.Score = res.Layout.Score
	return out, true
}

// #endregion resolve
