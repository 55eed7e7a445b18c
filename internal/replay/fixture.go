package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/protocol"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/resolver"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/session"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	UseBuiltins     bool                    `json:"use_builtins"`
	Protocols       []protocol.Definition   `json:"protocols"`
	Config          FixtureConfig           `json:"config"`
	Steps           []FixtureStep           `json:"steps"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureConfig mirrors resolver.Config with JSON tags. Missing fields take
// the resolver defaults.
type FixtureConfig struct {
	MinimumScore        *float64 `json:"minimum_score"`
	TieBreak            string   `json:"tie_break"`
	DeduplicateFallback bool     `json:"deduplicate_fallback"`
}

// FixtureRequest mirrors resolver.Request with JSON tags.
type FixtureRequest struct {
	ProtocolID string `json:"protocol_id"`
	StageID    string `json:"stage_id"`
	StageIndex *int   `json:"stage_index"`
}

// FixtureStep is one session snapshot to resolve.
type FixtureStep struct {
	StepID  string           `json:"step_id"`
	Session session.Snapshot `json:"session"`
	Request FixtureRequest   `json:"request"`
}

// FixtureExpectedResult captures the expected layout per step. Empty
// fields are not checked.
type FixtureExpectedResult struct {
	StepID     string   `json:"step_id"`
	ProtocolID string   `json:"protocol_id"`
	StageID    string   `json:"stage_id"`
	Decision   string   `json:"decision"`
	SeriesIDs  []string `json:"series_ids"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Registry builds the protocol registry the fixture describes: the
// built-in library when UseBuiltins is set, followed by the fixture's own
// protocols.
func (f *Fixture) Registry() (*protocol.Registry, error) {
	reg := protocol.NewRegistry(nil)
	if f.UseBuiltins {
		if _, err := protocol.LoadBuiltins(reg); err != nil {
			return nil, fmt.Errorf("load builtins: %w", err)
		}
	}
	for _, d := range f.Protocols {
		if err := reg.RegisterDefinition(d); err != nil {
			return nil, fmt.Errorf("register fixture protocol: %w", err)
		}
	}
	return reg, nil
}

// ToStep converts a FixtureStep to a domain Step.
func (fs *FixtureStep) ToStep() Step {
	return Step{
		StepID:   fs.StepID,
		Snapshot: fs.Session,
		Request: resolver.Request{
			ProtocolID: fs.Request.ProtocolID,
			StageID:    fs.Request.StageID,
			StageIndex: fs.Request.StageIndex,
		},
	}
}

// ToSteps converts every fixture step.
func (f *Fixture) ToSteps() []Step {
	out := make([]Step, len(f.Steps))
	for i := range f.Steps {
		out[i] = f.Steps[i].ToStep()
	}
	return out
}

// ToResolverConfig converts a FixtureConfig to a resolver.Config.
func (fc *FixtureConfig) ToResolverConfig() resolver.Config {
	cfg := resolver.DefaultConfig()
	if fc.MinimumScore != nil {
		cfg.MinimumScore = *fc.MinimumScore
	}
	if fc.TieBreak != "" {
		cfg.TieBreak = resolver.TieBreak(fc.TieBreak)
	}
	cfg.DeduplicateFallback = fc.DeduplicateFallback
	return cfg
}

// #endregion fixture-loader
