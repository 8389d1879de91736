package store

import "time"

// Seal is the persisted summary of a finished session. One row is appended
// to sessions.json and the same object rides in the chain's session_seal
// record.
type Seal struct {
	SessionID         string `json:"session_id"`
	ConversationID    string `json:"conversation_id"`
	ConversationIndex int    `json:"conversation_index"`
	Client            string `json:"client"`
	TaskType          string `json:"task_type"`
	Title             string `json:"title,omitempty"`
	PrivateTitle      string `json:"private_title,omitempty"`
	Project           string `json:"project,omitempty"`
	Model             string `json:"model,omitempty"`

	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	DurationSeconds int64     `json:"duration_seconds"`
	ActiveSeconds   int64     `json:"active_seconds"`

	HeartbeatCount    int      `json:"heartbeat_count"`
	RecordCount       int      `json:"record_count"`
	FilesTouchedCount int      `json:"files_touched_count"`
	Languages         []string `json:"languages,omitempty"`
	MilestoneCount    int      `json:"milestone_count"`

	ChainStartHash string `json:"chain_start_hash"`
	ChainEndHash   string `json:"chain_end_hash"`
	SealSignature  string `json:"seal_signature"`

	Evaluation      *Evaluation `json:"evaluation,omitempty"`
	Score           *int        `json:"score,omitempty"`
	ParentSessionID string      `json:"parent_session_id,omitempty"`
}

// Evaluation is the optional self-assessment supplied at session end.
// Rated inputs are 1-5; ToolsLeveraged is an open count capped at 5 when
// scored.
type Evaluation struct {
	Framework         string `json:"framework,omitempty"`
	PromptQuality     int    `json:"prompt_quality"`
	ContextProvided   int    `json:"context_provided"`
	ScopeQuality      int    `json:"scope_quality"`
	IndependenceLevel int    `json:"independence_level"`
	ToolsLeveraged    int    `json:"tools_leveraged"`
	TaskOutcome       string `json:"task_outcome,omitempty"`
}

// Milestone is a user-declared achievement emitted at session end.
type Milestone struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	Title           string    `json:"title"`
	PrivateTitle    string    `json:"private_title,omitempty"`
	Category        string    `json:"category"`
	Complexity      string    `json:"complexity"`
	DurationMinutes int64     `json:"duration_minutes"`
	Languages       []string  `json:"languages,omitempty"`
	Client          string    `json:"client,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	ChainHash       string    `json:"chain_hash"`
	Published       bool      `json:"published"`
}

// MilestoneCategories are the recognized category tags.
var MilestoneCategories = []string{
	"feature", "bugfix", "refactor", "test", "docs", "setup", "deployment", "other",
}

// MilestoneComplexities are the recognized complexity tags.
var MilestoneComplexities = []string{"simple", "medium", "complex"}

// ValidMilestoneCategory reports whether category is a recognized tag.
func ValidMilestoneCategory(category string) bool {
	for _, c := range MilestoneCategories {
		if c == category {
			return true
		}
	}
	return false
}

// ValidMilestoneComplexity reports whether complexity is a recognized tag.
func ValidMilestoneComplexity(complexity string) bool {
	for _, c := range MilestoneComplexities {
		if c == complexity {
			return true
		}
	}
	return false
}
