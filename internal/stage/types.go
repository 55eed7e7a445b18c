package stage

// #region status
// Status is how a stage may be shown for the current matches.
type Status string

const (
	// StatusEnabled stages can be picked automatically.
	StatusEnabled Status = "enabled"
	// StatusPassive stages are shown only when asked for by id, index or
	// navigation, or when no stage is enabled.
	StatusPassive Status = "passive"
	// StatusDisabled stages are never shown.
	StatusDisabled Status = "disabled"
)

// #endregion status

// #region evaluation
// Evaluation is the activation check of one stage.
type Evaluation struct {
	Index            int      `json:"index"`
	StageID          string   `json:"stage_id"`
	Status           Status   `json:"status"`
	ViewportsMatched int      `json:"viewports_matched"`
	MissingSelectors []string `json:"missing_selectors,omitempty"`
}

// Request asks for a particular stage. The zero value asks for none.
type Request struct {
	StageID    string
	StageIndex *int
}

// #endregion evaluation
