// Package session implements the state machine that owns a live coding
// session: start, heartbeats, end, the parent/child nesting stack, and the
// seal that summarizes a finished session.
//
// The engine appends to the session's chain file through internal/chain and
// internal/store, and signs records with the keystore key when one is
// available. All mutations for one engine are serialized by the engine's
// own lock; the daemon gives each transport its own engine.
package session

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"useaid/internal/chain"
	"useaid/internal/config"
	"useaid/internal/keystore"
	"useaid/internal/store"
)

// Errors
var (
	ErrNoActiveSession = errors.New("session: no active session")
	ErrInvalidArgument = errors.New("session: invalid argument")
)

// TaskTypes are the recognized task tags.
var TaskTypes = []string{
	"coding", "debugging", "refactoring", "code-review", "testing",
	"documentation", "research", "planning", "other",
}

// DefaultTaskType is used when the caller omits task_type.
const DefaultTaskType = "coding"

// ValidTaskType reports whether t is a recognized tag.
func ValidTaskType(t string) bool {
	for _, tt := range TaskTypes {
		if tt == t {
			return true
		}
	}
	return false
}

// state is the in-memory record of one live session. Frames on the parent
// stack hold snapshots of this struct by value; nothing in it may be a
// shared pointer into the live session.
type state struct {
	SessionID         string
	ConversationID    string
	ConversationIndex int
	Client            string
	TaskType          string
	Title             string
	PrivateTitle      string
	PromptWordCount   int
	PromptImageDescs  []string
	Model             string
	Project           string
	Parent            string

	StartTime    time.Time
	LastActivity time.Time

	HeartbeatCount int
	RecordCount    int
	ChainStartHash string
	ChainTip       string
	ChildPaused    time.Duration
	InProgress     bool
}

// frame is one entry of the parent stack.
type frame struct {
	snapshot state
	pausedAt time.Time
}

// Engine owns one transport's live session.
type Engine struct {
	paths store.Paths
	cfg   *config.Config
	key   *keystore.Key // nil in unsigned mode
	reg   *Registry
	now   func() time.Time

	mu    sync.Mutex
	cur   *state
	stack []frame

	// Continuity across resets.
	lastConversationID    string
	lastConversationIndex int
	lastClient            string
}

// New creates an engine with a private registry. key may be nil; the
// engine then writes unsigned records.
func New(paths store.Paths, cfg *config.Config, key *keystore.Key) *Engine {
	return NewWithRegistry(paths, cfg, key, NewRegistry())
}

// NewWithRegistry creates an engine sharing a live-session registry with
// the other engines over the same data directory.
func NewWithRegistry(paths store.Paths, cfg *config.Config, key *keystore.Key, reg *Registry) *Engine {
	return &Engine{
		paths: paths,
		cfg:   cfg,
		key:   key,
		reg:   reg,
		now:   time.Now,
	}
}

// SigningAvailable reports whether records are being signed.
func (e *Engine) SigningAvailable() bool {
	return e.key != nil
}

// Active reports whether a session is in progress.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil && e.cur.InProgress
}

// Depth returns the number of live sessions (current plus stacked parents).
func (e *Engine) Depth() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return 0
	}
	return 1 + len(e.stack)
}

func (e *Engine) signingKey() []byte {
	if e.key == nil {
		return nil
	}
	return e.key.Private
}

// appendRecord builds and persists one chain record for st. The in-memory
// tip only advances after the disk write succeeds, so a failed append can
// be retried from the same tip.
func (e *Engine) appendRecord(st *state, typ chain.RecordType, data map[string]any) (*chain.Record, error) {
	prev := chain.Genesis
	if st.RecordCount > 0 {
		prev = st.ChainTip
	}
	r, err := chain.BuildAt(typ, st.SessionID, data, prev, e.signingKey(), e.now())
	if err != nil {
		return nil, err
	}
	if err := e.paths.AppendRecord(st.SessionID, r); err != nil {
		return nil, err
	}
	if st.RecordCount == 0 {
		st.ChainStartHash = r.Hash
	}
	st.ChainTip = r.Hash
	st.RecordCount++
	return r, nil
}

// =============================================================================
// start
// =============================================================================

// StartParams configures a new session.
type StartParams struct {
	TaskType         string   `json:"task_type"`
	Client           string   `json:"client"`
	Title            string   `json:"title,omitempty"`
	PrivateTitle     string   `json:"private_title,omitempty"`
	Prompt           string   `json:"prompt,omitempty"`
	PromptWordCount  int      `json:"prompt_word_count,omitempty"`
	PromptImageDescs []string `json:"prompt_image_descriptions,omitempty"`
	Model            string   `json:"model,omitempty"`
	Project          string   `json:"project,omitempty"`
	ConversationID   string   `json:"conversation_id,omitempty"`
}

// StartResult is returned from Start.
type StartResult struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
}

// Start begins a session. If one is already in progress it becomes the
// parent: its state is snapshotted onto the stack and the new session runs
// as a child until it ends.
func (e *Engine) Start(params StartParams) (*StartResult, error) {
	taskType := params.TaskType
	if taskType == "" {
		taskType = DefaultTaskType
	}
	if !ValidTaskType(taskType) {
		return nil, fmt.Errorf("%w: unknown task_type %q", ErrInvalidArgument, params.TaskType)
	}

	// The prompt itself is never persisted; only its word count survives.
	wordCount := params.PromptWordCount
	if wordCount == 0 && params.Prompt != "" {
		wordCount = len(strings.Fields(params.Prompt))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	next := state{
		SessionID:        newSessionID(),
		Client:           params.Client,
		TaskType:         taskType,
		Title:            params.Title,
		PrivateTitle:     params.PrivateTitle,
		PromptWordCount:  wordCount,
		PromptImageDescs: append([]string(nil), params.PromptImageDescs...),
		Model:            params.Model,
		Project:          params.Project,
		StartTime:        now,
		LastActivity:     now,
		InProgress:       true,
	}

	pushedParent := false
	if e.cur != nil && e.cur.InProgress {
		// Nested start: current session pauses, new one becomes the child.
		next.Parent = e.cur.SessionID
		if params.ConversationID == "" || params.ConversationID == e.cur.ConversationID {
			next.ConversationID = e.cur.ConversationID
			next.ConversationIndex = e.lastConversationIndex + 1
		} else {
			next.ConversationID = params.ConversationID
			next.ConversationIndex = 0
		}
		e.stack = append(e.stack, frame{snapshot: *e.cur, pausedAt: now})
		pushedParent = true
	} else {
		next.Client = firstNonEmpty(params.Client, e.lastClient)
		if params.ConversationID != "" && params.ConversationID == e.lastConversationID {
			next.ConversationID = params.ConversationID
			next.ConversationIndex = e.lastConversationIndex + 1
		} else if params.ConversationID != "" {
			next.ConversationID = params.ConversationID
		} else {
			next.ConversationID = newConversationID()
		}
	}

	data := map[string]any{
		"task_type":          next.TaskType,
		"client":             next.Client,
		"conversation_id":    next.ConversationID,
		"conversation_index": next.ConversationIndex,
	}
	if next.Title != "" {
		data["title"] = next.Title
	}
	if next.Model != "" {
		data["model"] = next.Model
	}
	if next.Project != "" {
		data["project"] = next.Project
	}
	if next.PromptWordCount > 0 {
		data["prompt_word_count"] = next.PromptWordCount
	}
	if len(next.PromptImageDescs) > 0 {
		data["prompt_image_descriptions"] = next.PromptImageDescs
	}
	if next.Parent != "" {
		data["parent_session_id"] = next.Parent
	}

	if _, err := e.appendRecord(&next, chain.TypeSessionStart, data); err != nil {
		if pushedParent {
			// Roll the push back; the parent resumes untouched.
			e.stack = e.stack[:len(e.stack)-1]
		}
		return nil, err
	}

	e.cur = &next
	e.reg.add(next.SessionID)
	e.lastConversationID = next.ConversationID
	e.lastConversationIndex = next.ConversationIndex
	return &StartResult{SessionID: next.SessionID, ConversationID: next.ConversationID}, nil
}

// =============================================================================
// heartbeat
// =============================================================================

// HeartbeatResult is returned from Heartbeat.
type HeartbeatResult struct {
	HeartbeatNumber   int   `json:"heartbeat_number"`
	CumulativeSeconds int64 `json:"cumulative_seconds"`
}

// Heartbeat marks liveness: bumps the counter, refreshes last activity,
// and appends a heartbeat record.
func (e *Engine) Heartbeat() (*HeartbeatResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || !e.cur.InProgress {
		return nil, ErrNoActiveSession
	}

	now := e.now()
	number := e.cur.HeartbeatCount + 1
	cumulative := int64((now.Sub(e.cur.StartTime) - e.cur.ChildPaused).Seconds())
	if cumulative < 0 {
		cumulative = 0
	}

	data := map[string]any{
		"heartbeat_number":   number,
		"cumulative_seconds": cumulative,
	}
	if _, err := e.appendRecord(e.cur, chain.TypeHeartbeat, data); err != nil {
		return nil, err
	}

	e.cur.HeartbeatCount = number
	e.cur.LastActivity = now
	return &HeartbeatResult{HeartbeatNumber: number, CumulativeSeconds: cumulative}, nil
}

// =============================================================================
// end
// =============================================================================

// MilestoneParams declares one achievement at session end.
type MilestoneParams struct {
	Title        string `json:"title"`
	PrivateTitle string `json:"private_title,omitempty"`
	Category     string `json:"category,omitempty"`
	Complexity   string `json:"complexity,omitempty"`
}

// EndParams closes a session.
type EndParams struct {
	TaskType          string            `json:"task_type"`
	Languages         []string          `json:"languages"`
	FilesTouchedCount int               `json:"files_touched_count"`
	Milestones        []MilestoneParams `json:"milestones,omitempty"`
	Evaluation        *store.Evaluation `json:"evaluation,omitempty"`
}

// EndResult is returned from End.
type EndResult struct {
	DurationSeconds int64 `json:"duration_seconds"`
	MilestoneCount  int   `json:"milestone_count"`
	Score           *int  `json:"score,omitempty"`
}

// End appends the session_end record, emits milestones (when tracking is
// enabled), seals the chain, and resumes the parent session if one is
// stacked.
func (e *Engine) End(params EndParams) (*EndResult, error) {
	if params.FilesTouchedCount < 0 {
		return nil, fmt.Errorf("%w: files_touched_count must be non-negative", ErrInvalidArgument)
	}
	for _, m := range params.Milestones {
		if m.Title == "" {
			return nil, fmt.Errorf("%w: milestone title is required", ErrInvalidArgument)
		}
		if m.Category != "" && !store.ValidMilestoneCategory(m.Category) {
			return nil, fmt.Errorf("%w: unknown milestone category %q", ErrInvalidArgument, m.Category)
		}
		if m.Complexity != "" && !store.ValidMilestoneComplexity(m.Complexity) {
			return nil, fmt.Errorf("%w: unknown milestone complexity %q", ErrInvalidArgument, m.Complexity)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur == nil || !e.cur.InProgress {
		return nil, ErrNoActiveSession
	}
	if params.TaskType != "" && params.TaskType != e.cur.TaskType {
		return nil, fmt.Errorf("%w: task_type %q does not match session %q",
			ErrInvalidArgument, params.TaskType, e.cur.TaskType)
	}

	languages := normalizeLanguages(params.Languages)

	var milestones []MilestoneParams
	if e.cfg.MilestoneTrackingEnabled() {
		milestones = params.Milestones
	}

	var score *int
	if params.Evaluation != nil {
		s := Score(params.Evaluation, e.cfg.Framework())
		score = &s
	}

	return e.endLocked(e.now(), languages, params.FilesTouchedCount, milestones, params.Evaluation, score)
}

// endLocked finishes the current session. Callers hold e.mu.
func (e *Engine) endLocked(endTime time.Time, languages []string, filesTouched int,
	milestones []MilestoneParams, eval *store.Evaluation, score *int) (*EndResult, error) {

	st := e.cur

	duration := endTime.Sub(st.StartTime) - st.ChildPaused
	if duration < 0 {
		duration = 0
	}
	active := st.LastActivity.Sub(st.StartTime) - st.ChildPaused
	if active < 0 {
		active = 0
	}

	endData := map[string]any{
		"task_type":           st.TaskType,
		"duration_seconds":    int64(duration.Seconds()),
		"active_seconds":      int64(active.Seconds()),
		"files_touched_count": filesTouched,
		"heartbeat_count":     st.HeartbeatCount,
	}
	if len(languages) > 0 {
		endData["languages"] = languages
	}
	if eval != nil {
		endData["evaluation"] = eval
	}
	if _, err := e.appendRecord(st, chain.TypeSessionEnd, endData); err != nil {
		return nil, err
	}

	for _, m := range milestones {
		milestone := store.Milestone{
			ID:              newMilestoneID(),
			SessionID:       st.SessionID,
			Title:           m.Title,
			PrivateTitle:    m.PrivateTitle,
			Category:        defaultString(m.Category, "other"),
			Complexity:      defaultString(m.Complexity, "medium"),
			DurationMinutes: int64(duration.Minutes()),
			Languages:       languages,
			Client:          st.Client,
			CreatedAt:       endTime,
		}
		rec, err := e.appendRecord(st, chain.TypeMilestone, map[string]any{
			"id":         milestone.ID,
			"title":      milestone.Title,
			"category":   milestone.Category,
			"complexity": milestone.Complexity,
		})
		if err != nil {
			return nil, err
		}
		milestone.ChainHash = rec.Hash
		if err := e.paths.UpsertMilestone(milestone); err != nil {
			return nil, err
		}
	}

	seal := store.Seal{
		SessionID:         st.SessionID,
		ConversationID:    st.ConversationID,
		ConversationIndex: st.ConversationIndex,
		Client:            st.Client,
		TaskType:          st.TaskType,
		Title:             st.Title,
		PrivateTitle:      st.PrivateTitle,
		Project:           st.Project,
		Model:             st.Model,
		StartedAt:         st.StartTime,
		EndedAt:           endTime,
		DurationSeconds:   int64(duration.Seconds()),
		ActiveSeconds:     int64(active.Seconds()),
		HeartbeatCount:    st.HeartbeatCount,
		FilesTouchedCount: filesTouched,
		Languages:         languages,
		MilestoneCount:    len(milestones),
		ChainStartHash:    st.ChainStartHash,
		ChainEndHash:      st.ChainTip,
		Evaluation:        eval,
		Score:             score,
		ParentSessionID:   st.Parent,
		// The seal record itself is the final line of the file.
		RecordCount: st.RecordCount + 1,
	}
	seal.SealSignature = SignSeal(seal.ChainStartHash, seal.ChainEndHash, e.signingKey())

	if _, err := e.appendRecord(st, chain.TypeSessionSeal, sealData(seal)); err != nil {
		return nil, err
	}
	if err := e.paths.SealChain(st.SessionID); err != nil {
		return nil, err
	}
	// A crash-recovery pass may already hold a row for this session.
	if !e.paths.HasSeal(st.SessionID) {
		if err := e.paths.AppendSeal(seal); err != nil {
			return nil, err
		}
	}
	e.reg.remove(st.SessionID)
	e.lastClient = st.Client

	// Resume the parent, accumulating the time we spent in this child.
	if n := len(e.stack); n > 0 {
		f := e.stack[n-1]
		e.stack = e.stack[:n-1]
		parent := f.snapshot
		parent.ChildPaused += e.now().Sub(f.pausedAt)
		e.cur = &parent
		e.lastConversationID = parent.ConversationID
		e.lastConversationIndex = parent.ConversationIndex
	} else {
		e.cur = nil
	}

	return &EndResult{
		DurationSeconds: seal.DurationSeconds,
		MilestoneCount:  len(milestones),
		Score:           score,
	}, nil
}

// =============================================================================
// seal-active
// =============================================================================

// SealActive is the safety net for sessions whose caller vanished: it
// synthesizes an end and a seal for every live session (current plus
// stacked parents) and for every orphan chain file left in the active
// directory by a previous process. Chains owned by a live sibling engine
// on the shared registry are not orphans and are left alone. Idempotent;
// returns the number sealed.
func (e *Engine) SealActive() (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sealed := 0
	var firstErr error

	for e.cur != nil && e.cur.InProgress {
		endTime := e.cur.LastActivity
		if _, err := e.endLocked(endTime, nil, 0, nil, nil, nil); err != nil {
			firstErr = err
			break
		}
		sealed++
	}

	// One orphan scan at a time across all engines, and never over a
	// chain a sibling engine still owns.
	e.reg.scanMu.Lock()
	defer e.reg.scanMu.Unlock()

	orphans, err := e.paths.ListActiveChains()
	if err != nil && firstErr == nil {
		firstErr = err
	}
	for _, id := range orphans {
		if e.reg.has(id) {
			continue
		}
		if err := e.recoverOrphan(id); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sealed++
	}
	return sealed, firstErr
}

// recoverOrphan seals an on-disk chain with no in-memory session. The
// synthesized duration spans the first to the last persisted record.
func (e *Engine) recoverOrphan(sessionID string) error {
	records, err := store.ReadChain(e.paths.ActiveChain(sessionID))
	if err != nil {
		return err
	}
	if len(records) == 0 {
		// Nothing recoverable; leave the file for inspection.
		return fmt.Errorf("session: empty active chain %s", sessionID)
	}

	first, last := records[0], records[len(records)-1]
	startTime, _ := time.Parse(time.RFC3339Nano, first.Timestamp)
	lastTime, err := time.Parse(time.RFC3339Nano, last.Timestamp)
	if err != nil {
		lastTime = startTime
	}
	duration := lastTime.Sub(startTime)
	if duration < 0 {
		duration = 0
	}

	var startMeta struct {
		TaskType          string `json:"task_type"`
		Client            string `json:"client"`
		Title             string `json:"title"`
		Project           string `json:"project"`
		Model             string `json:"model"`
		ConversationID    string `json:"conversation_id"`
		ConversationIndex int    `json:"conversation_index"`
		ParentSessionID   string `json:"parent_session_id"`
	}
	json.Unmarshal(first.Data, &startMeta)

	heartbeats := 0
	for _, r := range records {
		if r.Type == chain.TypeHeartbeat {
			heartbeats++
		}
	}

	st := &state{
		SessionID:         sessionID,
		ConversationID:    startMeta.ConversationID,
		ConversationIndex: startMeta.ConversationIndex,
		Client:            startMeta.Client,
		TaskType:          defaultString(startMeta.TaskType, DefaultTaskType),
		Title:             startMeta.Title,
		Project:           startMeta.Project,
		Model:             startMeta.Model,
		Parent:            startMeta.ParentSessionID,
		StartTime:         startTime,
		LastActivity:      lastTime,
		HeartbeatCount:    heartbeats,
		RecordCount:       len(records),
		ChainStartHash:    first.Hash,
		ChainTip:          last.Hash,
	}

	endData := map[string]any{
		"task_type":           st.TaskType,
		"duration_seconds":    int64(duration.Seconds()),
		"active_seconds":      int64(duration.Seconds()),
		"files_touched_count": 0,
		"heartbeat_count":     heartbeats,
		"recovered":           true,
	}
	if _, err := e.appendRecord(st, chain.TypeSessionEnd, endData); err != nil {
		return err
	}

	seal := store.Seal{
		SessionID:         st.SessionID,
		ConversationID:    st.ConversationID,
		ConversationIndex: st.ConversationIndex,
		Client:            st.Client,
		TaskType:          st.TaskType,
		Title:             st.Title,
		Project:           st.Project,
		Model:             st.Model,
		StartedAt:         startTime,
		EndedAt:           lastTime,
		DurationSeconds:   int64(duration.Seconds()),
		ActiveSeconds:     int64(duration.Seconds()),
		HeartbeatCount:    heartbeats,
		ChainStartHash:    st.ChainStartHash,
		ChainEndHash:      st.ChainTip,
		ParentSessionID:   st.Parent,
		RecordCount:       st.RecordCount + 1,
	}
	seal.SealSignature = SignSeal(seal.ChainStartHash, seal.ChainEndHash, e.signingKey())

	if _, err := e.appendRecord(st, chain.TypeSessionSeal, sealData(seal)); err != nil {
		return err
	}
	if err := e.paths.SealChain(st.SessionID); err != nil {
		return err
	}
	if e.paths.HasSeal(st.SessionID) {
		return nil
	}
	return e.paths.AppendSeal(seal)
}

// =============================================================================
// helpers
// =============================================================================

// sealData converts a seal into the open mapping stored in its chain
// record.
func sealData(seal store.Seal) map[string]any {
	b, _ := json.Marshal(seal)
	var m map[string]any
	json.Unmarshal(b, &m)
	return m
}

func normalizeLanguages(langs []string) []string {
	seen := make(map[string]bool, len(langs))
	var out []string
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func newSessionID() string {
	return "s-" + shortID()
}

func newConversationID() string {
	return "c-" + shortID()
}

func newMilestoneID() string {
	return "m-" + shortID()
}

func shortID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:8])
}
