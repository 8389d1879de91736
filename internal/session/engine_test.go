package session

import (
	"errors"
	"os"
	"testing"
	"time"

	"useaid/internal/chain"
	"useaid/internal/config"
	"useaid/internal/keystore"
	"useaid/internal/store"
)

// fakeClock steps time deterministically.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func testEngine(t *testing.T) (*Engine, *fakeClock, store.Paths) {
	t.Helper()
	paths := store.Paths{Base: t.TempDir()}
	if err := paths.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	e := New(paths, config.Default(), nil)
	e.now = clock.now
	return e, clock, paths
}

func signedEngine(t *testing.T) (*Engine, *fakeClock, store.Paths, *keystore.Key) {
	t.Helper()
	paths := store.Paths{Base: t.TempDir()}
	if err := paths.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	key, err := keystore.OpenOrCreate(paths.KeystoreFile())
	if err != nil {
		t.Fatalf("OpenOrCreate failed: %v", err)
	}
	clock := newFakeClock()
	e := New(paths, config.Default(), key)
	e.now = clock.now
	return e, clock, paths, key
}

// =============================================================================
// lifecycle
// =============================================================================

func TestLifecycle(t *testing.T) {
	e, clock, paths := testEngine(t)

	started, err := e.Start(StartParams{TaskType: "coding", Client: "claude-code"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if started.SessionID == "" || started.ConversationID == "" {
		t.Fatal("Start must assign session and conversation IDs")
	}
	if !e.Active() {
		t.Error("engine should be active after Start")
	}

	clock.advance(5 * time.Minute)
	hb, err := e.Heartbeat()
	if err != nil {
		t.Fatalf("Heartbeat failed: %v", err)
	}
	if hb.HeartbeatNumber != 1 {
		t.Errorf("heartbeat_number = %d, want 1", hb.HeartbeatNumber)
	}
	if hb.CumulativeSeconds != 300 {
		t.Errorf("cumulative_seconds = %d, want 300", hb.CumulativeSeconds)
	}

	clock.advance(5 * time.Minute)
	ended, err := e.End(EndParams{Languages: []string{"Go", "go", " TypeScript "}, FilesTouchedCount: 3})
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if ended.DurationSeconds != 600 {
		t.Errorf("duration_seconds = %d, want 600", ended.DurationSeconds)
	}
	if e.Active() {
		t.Error("engine should be idle after End")
	}

	// Chain moved from active to sealed.
	if _, err := os.Stat(paths.ActiveChain(started.SessionID)); !os.IsNotExist(err) {
		t.Error("active chain file should be gone after End")
	}
	records, err := store.ReadChain(paths.SealedChain(started.SessionID))
	if err != nil {
		t.Fatalf("sealed chain unreadable: %v", err)
	}
	// start + heartbeat + end + seal
	if len(records) != 4 {
		t.Fatalf("sealed chain has %d records, want 4", len(records))
	}
	if records[0].Type != chain.TypeSessionStart || records[len(records)-1].Type != chain.TypeSessionSeal {
		t.Error("chain must run session_start .. session_seal")
	}
	if records[0].PrevHash != chain.Genesis {
		t.Errorf("first prev_hash = %q, want GENESIS", records[0].PrevHash)
	}

	seals := paths.LoadSeals()
	if len(seals) != 1 {
		t.Fatalf("got %d seals, want 1", len(seals))
	}
	seal := seals[0]
	if seal.SessionID != started.SessionID {
		t.Errorf("seal session_id = %q, want %q", seal.SessionID, started.SessionID)
	}
	if seal.RecordCount != len(records) {
		t.Errorf("seal record_count = %d, chain has %d lines", seal.RecordCount, len(records))
	}
	if seal.ChainStartHash != records[0].Hash || seal.ChainEndHash != records[len(records)-1].Hash {
		t.Error("seal chain hashes must match the first and last records")
	}
	if seal.ActiveSeconds != 300 {
		t.Errorf("active_seconds = %d, want 300 (last heartbeat at +5m)", seal.ActiveSeconds)
	}
	want := []string{"go", "typescript"}
	if len(seal.Languages) != 2 || seal.Languages[0] != want[0] || seal.Languages[1] != want[1] {
		t.Errorf("languages = %v, want %v", seal.Languages, want)
	}
}

func TestSignedChainVerifies(t *testing.T) {
	e, clock, paths, key := signedEngine(t)

	started, err := e.Start(StartParams{Client: "cursor"})
	if err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Minute)
	if _, err := e.Heartbeat(); err != nil {
		t.Fatal(err)
	}
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}

	records, err := store.ReadChain(paths.SealedChain(started.SessionID))
	if err != nil {
		t.Fatal(err)
	}
	res := chain.VerifyChain(records, key.PublicKeyPEM)
	if !res.Valid || !res.SignatureValid {
		t.Errorf("sealed chain should verify, got %+v", res)
	}

	seal := paths.LoadSeals()[0]
	if seal.SealSignature == chain.Unsigned {
		t.Fatal("seal should be signed")
	}
	if !VerifySeal(key.PublicKeyPEM, seal.ChainStartHash, seal.ChainEndHash, seal.SealSignature) {
		t.Error("seal signature should verify")
	}
}

func TestHeartbeatWithoutSession(t *testing.T) {
	e, _, _ := testEngine(t)
	if _, err := e.Heartbeat(); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("got %v, want ErrNoActiveSession", err)
	}
	if _, err := e.End(EndParams{}); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("got %v, want ErrNoActiveSession", err)
	}
}

func TestStartValidation(t *testing.T) {
	e, _, _ := testEngine(t)
	if _, err := e.Start(StartParams{TaskType: "surfing"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("unknown task_type: got %v, want ErrInvalidArgument", err)
	}

	started, err := e.Start(StartParams{})
	if err != nil {
		t.Fatal(err)
	}
	_ = started
	if _, err := e.End(EndParams{TaskType: "debugging"}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("task_type mismatch on End: got %v, want ErrInvalidArgument", err)
	}
	if _, err := e.End(EndParams{FilesTouchedCount: -1}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("negative files_touched_count: got %v, want ErrInvalidArgument", err)
	}
	if _, err := e.End(EndParams{TaskType: "coding"}); err != nil {
		t.Fatalf("matching task_type should end cleanly: %v", err)
	}
}

func TestPromptNeverPersisted(t *testing.T) {
	e, _, paths := testEngine(t)
	secret := "please refactor the billing reconciliation job"
	started, err := e.Start(StartParams{Prompt: secret})
	if err != nil {
		t.Fatal(err)
	}

	records, err := store.ReadChain(paths.ActiveChain(started.SessionID))
	if err != nil {
		t.Fatal(err)
	}
	if string(records[0].Data) == "" {
		t.Fatal("start record has no data")
	}
	var meta struct {
		Prompt          string `json:"prompt"`
		PromptWordCount int    `json:"prompt_word_count"`
	}
	if err := records[0].UnmarshalData(&meta); err != nil {
		t.Fatal(err)
	}
	if meta.Prompt != "" {
		t.Error("prompt text must never reach disk")
	}
	if meta.PromptWordCount != 6 {
		t.Errorf("prompt_word_count = %d, want 6", meta.PromptWordCount)
	}
}

// =============================================================================
// conversations
// =============================================================================

func TestConversationContinuity(t *testing.T) {
	e, _, _ := testEngine(t)

	first, err := e.Start(StartParams{ConversationID: "c-abc"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ConversationID != "c-abc" {
		t.Errorf("conversation_id = %q, want c-abc", first.ConversationID)
	}
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}

	// Same conversation resumes at the next index.
	if _, err := e.Start(StartParams{ConversationID: "c-abc"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}

	// A different conversation starts over at index 0.
	if _, err := e.Start(StartParams{ConversationID: "c-other"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}

	seals := e.paths.LoadSeals()
	if len(seals) != 3 {
		t.Fatalf("got %d seals, want 3", len(seals))
	}
	if seals[0].ConversationIndex != 0 || seals[1].ConversationIndex != 1 {
		t.Errorf("same conversation should run indexes 0,1; got %d,%d",
			seals[0].ConversationIndex, seals[1].ConversationIndex)
	}
	if seals[2].ConversationIndex != 0 {
		t.Errorf("new conversation should restart at 0, got %d", seals[2].ConversationIndex)
	}
}

func TestStartPreservesClientAfterReset(t *testing.T) {
	e, clock, paths := testEngine(t)

	if _, err := e.Start(StartParams{Client: "claude-code"}); err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Minute)
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}

	// A follow-up start without a client inherits the previous one.
	inherited, err := e.Start(StartParams{})
	if err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Minute)
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}

	// An explicit client always wins.
	explicit, err := e.Start(StartParams{Client: "cursor"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}

	clients := make(map[string]string)
	for _, s := range paths.LoadSeals() {
		clients[s.SessionID] = s.Client
	}
	if got := clients[inherited.SessionID]; got != "claude-code" {
		t.Errorf("inherited client = %q, want claude-code", got)
	}
	if got := clients[explicit.SessionID]; got != "cursor" {
		t.Errorf("explicit client = %q, want cursor", got)
	}
}

// =============================================================================
// milestones
// =============================================================================

func TestMilestoneTrackingGate(t *testing.T) {
	e, _, paths := testEngine(t)

	milestone := MilestoneParams{Title: "shipped the parser", Category: "feature", Complexity: "complex"}

	if _, err := e.Start(StartParams{}); err != nil {
		t.Fatal(err)
	}
	res, err := e.End(EndParams{Milestones: []MilestoneParams{milestone}})
	if err != nil {
		t.Fatal(err)
	}
	if res.MilestoneCount != 1 {
		t.Fatalf("milestone_count = %d, want 1", res.MilestoneCount)
	}
	stored := paths.LoadMilestones()
	if len(stored) != 1 {
		t.Fatalf("got %d stored milestones, want 1", len(stored))
	}
	if stored[0].ChainHash == "" {
		t.Error("stored milestone must carry its chain record hash")
	}
	if stored[0].Category != "feature" || stored[0].Complexity != "complex" {
		t.Errorf("milestone tags lost: %+v", stored[0])
	}

	// Tracking off: declared milestones are silently dropped.
	e.cfg.MilestoneTracking = false
	if _, err := e.Start(StartParams{}); err != nil {
		t.Fatal(err)
	}
	res, err = e.End(EndParams{Milestones: []MilestoneParams{milestone}})
	if err != nil {
		t.Fatal(err)
	}
	if res.MilestoneCount != 0 {
		t.Errorf("milestone_count = %d with tracking off, want 0", res.MilestoneCount)
	}
	if got := len(paths.LoadMilestones()); got != 1 {
		t.Errorf("stored milestones grew to %d with tracking off", got)
	}
}

func TestMilestoneDefaults(t *testing.T) {
	e, _, paths := testEngine(t)
	if _, err := e.Start(StartParams{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.End(EndParams{Milestones: []MilestoneParams{{Title: "fixed it"}}}); err != nil {
		t.Fatal(err)
	}
	m := paths.LoadMilestones()[0]
	if m.Category != "other" || m.Complexity != "medium" {
		t.Errorf("defaults: category=%q complexity=%q, want other/medium", m.Category, m.Complexity)
	}
}

func TestMilestoneValidation(t *testing.T) {
	e, _, _ := testEngine(t)
	if _, err := e.Start(StartParams{}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.End(EndParams{Milestones: []MilestoneParams{{}}}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("missing title: got %v, want ErrInvalidArgument", err)
	}
	if _, err := e.End(EndParams{Milestones: []MilestoneParams{{Title: "x", Category: "magic"}}}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad category: got %v, want ErrInvalidArgument", err)
	}
	// Session survives failed End calls.
	if !e.Active() {
		t.Fatal("session should still be active after rejected End")
	}
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}
}

// =============================================================================
// nesting
// =============================================================================

func TestNestedSessionsExcludeChildTime(t *testing.T) {
	e, clock, paths := testEngine(t)

	parent, err := e.Start(StartParams{Client: "claude-code"})
	if err != nil {
		t.Fatal(err)
	}

	// 10 minutes of parent work, then a 30-minute child.
	clock.advance(10 * time.Minute)
	child, err := e.Start(StartParams{Client: "claude-code"})
	if err != nil {
		t.Fatal(err)
	}
	if e.Depth() != 2 {
		t.Fatalf("depth = %d, want 2", e.Depth())
	}

	clock.advance(30 * time.Minute)
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}
	if !e.Active() {
		t.Fatal("parent should resume after child ends")
	}

	// 5 more parent minutes.
	clock.advance(5 * time.Minute)
	res, err := e.End(EndParams{})
	if err != nil {
		t.Fatal(err)
	}
	if res.DurationSeconds != 15*60 {
		t.Errorf("parent duration = %ds, want 900 (child time excluded)", res.DurationSeconds)
	}

	seals := paths.LoadSeals()
	if len(seals) != 2 {
		t.Fatalf("got %d seals, want 2", len(seals))
	}
	childSeal, parentSeal := seals[0], seals[1]
	if childSeal.SessionID != child.SessionID || parentSeal.SessionID != parent.SessionID {
		t.Fatal("child must seal before parent")
	}
	if childSeal.ParentSessionID != parent.SessionID {
		t.Errorf("child parent_session_id = %q, want %q", childSeal.ParentSessionID, parent.SessionID)
	}
	if childSeal.DurationSeconds != 30*60 {
		t.Errorf("child duration = %ds, want 1800", childSeal.DurationSeconds)
	}
	if childSeal.ConversationID != parentSeal.ConversationID {
		t.Error("child without explicit conversation_id should inherit the parent's")
	}
	if childSeal.ConversationIndex != parentSeal.ConversationIndex+1 {
		t.Errorf("child conversation_index = %d, want parent+1", childSeal.ConversationIndex)
	}
}

// =============================================================================
// seal-active and crash recovery
// =============================================================================

func TestSealActiveStack(t *testing.T) {
	e, clock, paths := testEngine(t)

	if _, err := e.Start(StartParams{}); err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Minute)
	if _, err := e.Start(StartParams{}); err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Minute)

	sealed, err := e.SealActive()
	if err != nil {
		t.Fatalf("SealActive failed: %v", err)
	}
	if sealed != 2 {
		t.Errorf("sealed %d sessions, want 2", sealed)
	}
	if e.Active() {
		t.Error("engine should be idle after SealActive")
	}

	// Second call is a no-op.
	sealed, err = e.SealActive()
	if err != nil {
		t.Fatal(err)
	}
	if sealed != 0 {
		t.Errorf("second SealActive sealed %d, want 0", sealed)
	}
	if len(paths.LoadSeals()) != 2 {
		t.Errorf("seal list grew on repeated SealActive")
	}
}

func TestSealActiveRecoversOrphan(t *testing.T) {
	// First engine "crashes": its process state is discarded but the
	// active chain file survives.
	paths := store.Paths{Base: t.TempDir()}
	if err := paths.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	crashed := New(paths, config.Default(), nil)
	crashed.now = clock.now

	started, err := crashed.Start(StartParams{TaskType: "debugging", Client: "cursor"})
	if err != nil {
		t.Fatal(err)
	}
	clock.advance(7 * time.Minute)
	if _, err := crashed.Heartbeat(); err != nil {
		t.Fatal(err)
	}

	// New process. No in-memory session, but the orphan chain is on disk.
	fresh := New(paths, config.Default(), nil)
	fresh.now = clock.now
	sealed, err := fresh.SealActive()
	if err != nil {
		t.Fatalf("SealActive failed: %v", err)
	}
	if sealed != 1 {
		t.Fatalf("sealed %d orphans, want 1", sealed)
	}

	records, err := store.ReadChain(paths.SealedChain(started.SessionID))
	if err != nil {
		t.Fatalf("orphan chain not sealed: %v", err)
	}
	// start + heartbeat + synthesized end + seal
	if len(records) != 4 {
		t.Fatalf("recovered chain has %d records, want 4", len(records))
	}
	var endMeta struct {
		Recovered bool `json:"recovered"`
	}
	if err := records[2].UnmarshalData(&endMeta); err != nil {
		t.Fatal(err)
	}
	if !endMeta.Recovered {
		t.Error("synthesized end record should be marked recovered")
	}

	seals := paths.LoadSeals()
	if len(seals) != 1 {
		t.Fatalf("got %d seals, want 1", len(seals))
	}
	if seals[0].TaskType != "debugging" || seals[0].Client != "cursor" {
		t.Errorf("recovered seal lost start metadata: %+v", seals[0])
	}
	if seals[0].DurationSeconds != 7*60 {
		t.Errorf("recovered duration = %ds, want 420 (first to last record)", seals[0].DurationSeconds)
	}

	// Idempotent across another restart.
	again := New(paths, config.Default(), nil)
	sealed, err = again.SealActive()
	if err != nil {
		t.Fatal(err)
	}
	if sealed != 0 || len(paths.LoadSeals()) != 1 {
		t.Error("recovery must be idempotent")
	}
}

func TestSealActiveSkipsSiblingLiveSessions(t *testing.T) {
	// Two transports on one daemon share the data directory and the
	// registry; each holds its own live session.
	paths := store.Paths{Base: t.TempDir()}
	if err := paths.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	clock := newFakeClock()
	reg := NewRegistry()
	alpha := NewWithRegistry(paths, config.Default(), nil, reg)
	alpha.now = clock.now
	beta := NewWithRegistry(paths, config.Default(), nil, reg)
	beta.now = clock.now

	if _, err := alpha.Start(StartParams{Client: "claude-code"}); err != nil {
		t.Fatal(err)
	}
	betaStarted, err := beta.Start(StartParams{Client: "cursor"})
	if err != nil {
		t.Fatal(err)
	}
	clock.advance(5 * time.Minute)

	// Alpha seals only its own session; beta's open chain is not an
	// orphan.
	sealed, err := alpha.SealActive()
	if err != nil {
		t.Fatalf("SealActive failed: %v", err)
	}
	if sealed != 1 {
		t.Fatalf("alpha sealed %d sessions, want 1", sealed)
	}
	if !beta.Active() {
		t.Fatal("beta's session must survive alpha's seal pass")
	}
	if _, err := os.Stat(paths.ActiveChain(betaStarted.SessionID)); err != nil {
		t.Fatalf("beta's active chain was disturbed: %v", err)
	}

	// Beta keeps appending to its intact tip, then seals normally.
	if _, err := beta.Heartbeat(); err != nil {
		t.Fatalf("beta heartbeat after alpha sealed: %v", err)
	}
	clock.advance(time.Minute)
	sealed, err = beta.SealActive()
	if err != nil {
		t.Fatal(err)
	}
	if sealed != 1 {
		t.Fatalf("beta sealed %d sessions, want 1", sealed)
	}

	seals := paths.LoadSeals()
	if len(seals) != 2 {
		t.Fatalf("got %d seal rows, want 2", len(seals))
	}
	seen := make(map[string]bool)
	for _, s := range seals {
		if seen[s.SessionID] {
			t.Fatalf("duplicate seal row for %s", s.SessionID)
		}
		seen[s.SessionID] = true

		records, err := store.ReadChain(paths.SealedChain(s.SessionID))
		if err != nil {
			t.Fatalf("read sealed chain %s: %v", s.SessionID, err)
		}
		if res := chain.VerifyChain(records, ""); !res.Valid {
			t.Errorf("chain %s broken at record %d", s.SessionID, res.BrokenAt)
		}
		if len(records) != s.RecordCount {
			t.Errorf("chain %s has %d records, seal says %d",
				s.SessionID, len(records), s.RecordCount)
		}
	}
}

func TestEndDedupesSealRow(t *testing.T) {
	e, clock, paths := testEngine(t)

	started, err := e.Start(StartParams{})
	if err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Minute)

	// A recovery pass in another process already wrote a row for this
	// session.
	if err := paths.AppendSeal(store.Seal{SessionID: started.SessionID}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.End(EndParams{}); err != nil {
		t.Fatal(err)
	}

	count := 0
	for _, s := range paths.LoadSeals() {
		if s.SessionID == started.SessionID {
			count++
		}
	}
	if count != 1 {
		t.Errorf("got %d seal rows for the session, want 1", count)
	}
}

// =============================================================================
// backup / restore
// =============================================================================

func TestBackupRestoreRoundTrip(t *testing.T) {
	e, clock, paths := testEngine(t)

	if _, err := e.Start(StartParams{Client: "claude-code"}); err != nil {
		t.Fatal(err)
	}
	clock.advance(time.Minute)
	if _, err := e.End(EndParams{Milestones: []MilestoneParams{{Title: "done"}}}); err != nil {
		t.Fatal(err)
	}
	if err := config.Default().Save(paths); err != nil {
		t.Fatal(err)
	}

	blob, err := e.Backup()
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}
	if blob.Version != BackupVersion {
		t.Errorf("backup version = %d, want %d", blob.Version, BackupVersion)
	}
	if len(blob.Sessions) != 1 || len(blob.Milestones) != 1 || len(blob.SealedChains) != 1 {
		t.Fatalf("backup incomplete: %d sessions, %d milestones, %d chains",
			len(blob.Sessions), len(blob.Milestones), len(blob.SealedChains))
	}

	// Restoring onto the same state is a no-op.
	res, err := e.Restore(blob)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if res.SessionsAdded != 0 || res.MilestonesAdded != 0 || res.ChainsAdded != 0 {
		t.Errorf("restore onto identical state should add nothing, got %+v", res)
	}

	// Restoring into an empty home brings everything back.
	other := store.Paths{Base: t.TempDir()}
	if err := other.EnsureLayout(); err != nil {
		t.Fatal(err)
	}
	e2 := New(other, config.Default(), nil)
	res, err = e2.Restore(blob)
	if err != nil {
		t.Fatalf("Restore into empty home failed: %v", err)
	}
	if res.SessionsAdded != 1 || res.MilestonesAdded != 1 || res.ChainsAdded != 1 {
		t.Errorf("restore should add everything, got %+v", res)
	}
	if len(other.LoadSeals()) != 1 {
		t.Error("seal list not restored")
	}
	restored, err := other.ListSealedChains()
	if err != nil || len(restored) != 1 {
		t.Errorf("sealed chain not restored: %v %v", restored, err)
	}
}

func TestRestoreRejectsBadInput(t *testing.T) {
	e, _, _ := testEngine(t)
	if _, err := e.Restore(nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("nil backup: got %v, want ErrInvalidArgument", err)
	}
	if _, err := e.Restore(&Backup{Version: 99}); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("bad version: got %v, want ErrInvalidArgument", err)
	}
	blob := &Backup{Version: BackupVersion, SealedChains: map[string]string{"../escape.jsonl": "{}"}}
	if _, err := e.Restore(blob); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("path traversal filename: got %v, want ErrInvalidArgument", err)
	}
}
