package views

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/storage/jsonl"
	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/workspace"
)

func setupLedger(t *testing.T) (workspace.Paths, *jsonl.Store) {
	t.Helper()
	p := workspace.Discover(t.TempDir())
	require.NoError(t, p.EnsureLayout())
	led, err := jsonl.Open(p)
	require.NoError(t, err)
	return p, led
}

func tipOf(t *testing.T, led storage.Ledger, branch string) *string {
	t.Helper()
	tip, err := led.TipHash(context.Background(), branch)
	require.NoError(t, err)
	if tip == "" {
		return nil
	}
	return &tip
}

func addNote(t *testing.T, led storage.Ledger, branch, text string, tags []string) *types.Event {
	t.Helper()
	e, err := types.NewNoteEvent(branch, tipOf(t, led, branch), "user", text, tags)
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(context.Background(), e))
	return e
}

func addCmd(t *testing.T, led storage.Ledger, branch string, exitCode int, durationMS uint64, argv ...string) *types.Event {
	t.Helper()
	e, err := types.NewCmdEvent(types.CmdEventParams{
		Branch:     branch,
		ParentHash: tipOf(t, led, branch),
		Argv:       argv,
		Cwd:        ".",
		ExitCode:   exitCode,
		DurationMS: durationMS,
	})
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(context.Background(), e))
	return e
}

func addCommit(t *testing.T, led storage.Ledger, branch, title string, evidence []types.EvidenceItem) *types.Event {
	t.Helper()
	e, err := types.NewCommitEvent(types.CommitEventParams{
		Branch:       branch,
		ParentHash:   tipOf(t, led, branch),
		Title:        title,
		Contribution: "work",
		Evidence:     evidence,
	})
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(context.Background(), e))
	return e
}

// End-to-end scenario: phantom cmd filter.
func TestPhantomCmdNotASignal(t *testing.T) {
	_, led := setupLedger(t)
	ctx := context.Background()

	addCmd(t, led, "main", 1, 0, "go", "vet")    // phantom: never executed
	addCmd(t, led, "main", 1, 350, "go", "test") // real failure

	snap, err := BuildBranchSnapshot(ctx, led, "main")
	require.NoError(t, err)
	require.Len(t, snap.Signals, 1)
	assert.Equal(t, SignalCmdFail, snap.Signals[0].Kind)
	assert.Contains(t, snap.Signals[0].Text, "go test")
	assert.Contains(t, snap.Signals[0].Text, "exit=1")
}

func TestSnapshotCountsUncommitted(t *testing.T) {
	_, led := setupLedger(t)
	ctx := context.Background()

	addNote(t, led, "main", "note 1", nil)
	addNote(t, led, "main", "note 2", nil)

	snap, err := BuildBranchSnapshot(ctx, led, "main")
	require.NoError(t, err)
	assert.Empty(t, snap.Commits)
	assert.Equal(t, 2, snap.UncommittedEvents)

	addCommit(t, led, "main", "wrap up", nil)
	snap, err = BuildBranchSnapshot(ctx, led, "main")
	require.NoError(t, err)
	require.Len(t, snap.Commits, 1)
	assert.Zero(t, snap.UncommittedEvents)
	assert.Equal(t, "wrap up", snap.LastCommit.Title)
}

func TestSnapshotCreatedAtFallsBackToBranchCreate(t *testing.T) {
	_, led := setupLedger(t)
	ctx := context.Background()

	e, err := types.NewBranchCreateEvent("main", nil, "feat/x", "try it", "main", "")
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(ctx, e))

	snap, err := BuildBranchSnapshot(ctx, led, "feat/x")
	require.NoError(t, err)
	assert.Equal(t, e.TS, snap.CreatedAt)
	assert.Empty(t, snap.LastEventID)
}

func TestSnapshotMergesAndDecisionSignals(t *testing.T) {
	_, led := setupLedger(t)
	ctx := context.Background()

	d, err := types.NewDecisionEvent("main", nil, "db.engine", "sqlite", "MVP", "")
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(ctx, d))

	m, err := types.NewMergeEvent("main", &d.Hash, "feature", "main", "merge feature work", nil)
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(ctx, m))

	snap, err := BuildBranchSnapshot(ctx, led, "main")
	require.NoError(t, err)
	require.Len(t, snap.Merges, 1)
	assert.Equal(t, "feature", snap.Merges[0].Src)
	require.Len(t, snap.Signals, 1)
	assert.Equal(t, SignalNoteDecision, snap.Signals[0].Kind)
}

func TestSessionDigestParsing(t *testing.T) {
	_, led := setupLedger(t)
	ctx := context.Background()

	e, err := types.NewNoteEvent("main", nil, "system", "session summary", []string{"session_digest"})
	require.NoError(t, err)
	e.Payload["session_id"] = "sess-1"
	e.Payload["session_stats"] = map[string]any{
		"tool_calls":     42,
		"tool_failures":  3,
		"user_prompts":   7,
		"files_modified": []any{"a.go", "b.go"},
		"tasks_snapshot": []any{map[string]any{"subject": "fix auth", "status": "done"}},
		"outcome":        "completed",
	}
	require.NoError(t, types.Finalize(e))
	require.NoError(t, led.AppendEvent(ctx, e))

	snap, err := BuildBranchSnapshot(ctx, led, "main")
	require.NoError(t, err)
	require.Len(t, snap.SessionDigests, 1)
	digest := snap.SessionDigests[0]
	assert.Equal(t, "sess-1", digest.SessionID)
	assert.Equal(t, uint64(42), digest.ToolCalls)
	assert.Equal(t, []string{"a.go", "b.go"}, digest.FilesModified)
	require.Len(t, digest.TasksSnapshot, 1)
	assert.Equal(t, "fix auth", digest.TasksSnapshot[0].Subject)
	assert.Equal(t, "completed", digest.Outcome)
}

func TestRebuildBranchWritesViewFiles(t *testing.T) {
	p, led := setupLedger(t)
	ctx := context.Background()

	addNote(t, led, "main", "test note", nil)
	addCommit(t, led, "main", "first commit", nil)

	snap, err := RebuildBranch(ctx, led, "main")
	require.NoError(t, err)
	require.Len(t, snap.Commits, 1)

	dir := p.BranchDir("main")
	for _, name := range []string{"commit.md", "log.md", "metadata.yaml", "main.md"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	commitMD, err := os.ReadFile(filepath.Join(dir, "commit.md"))
	require.NoError(t, err)
	assert.Contains(t, string(commitMD), "first commit")
	assert.Contains(t, string(commitMD), "- Labels: claim")

	logMD, err := os.ReadFile(filepath.Join(dir, "log.md"))
	require.NoError(t, err)
	assert.Contains(t, string(logMD), "NOTE(user): test note")
	assert.Contains(t, string(logMD), "COMMIT: first commit")

	mainMD, err := os.ReadFile(filepath.Join(dir, "main.md"))
	require.NoError(t, err)
	assert.Contains(t, string(mainMD), "uncommitted_events: 0")
}

func TestRebuildAllCoversBranches(t *testing.T) {
	p, led := setupLedger(t)
	ctx := context.Background()

	addNote(t, led, "main", "main note", nil)
	bc, err := types.NewBranchCreateEvent("feature", nil, "feature", "testing", "main", "")
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(ctx, bc))

	snaps, err := RebuildAll(ctx, led)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(snaps), 2)

	names := map[string]bool{}
	for _, s := range snaps {
		names[s.Branch] = true
	}
	assert.True(t, names["main"])
	assert.True(t, names["feature"])

	// branches.json summary refreshed through the ledger refs.
	doc, err := led.BranchesJSON(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(doc), `"main"`)
	assert.Contains(t, string(doc), `"feature"`)
	assert.FileExists(t, p.BranchesJSON)
}

// End-to-end scenario: commit with auto-evidence.
func TestAutoEvidenceBuilder(t *testing.T) {
	_, led := setupLedger(t)
	ctx := context.Background()

	d, err := types.NewDecisionEvent("main", nil, "db.engine", "sqlite", "MVP", "")
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(ctx, d))
	failed := addCmd(t, led, "main", 1, 320, "make", "test")

	// Commit without evidence gets the claim label and no event refs.
	claim := addCommit(t, led, "main", "unverified", nil)
	assert.Contains(t, claim.PayloadStrings("labels"), "claim")
	assert.Empty(t, claim.Refs.Events)

	// Auto-evidence picks up the decision and the failed cmd.
	items, err := BuildAutoEvidence(ctx, led, "main", nil)
	require.NoError(t, err)
	require.Len(t, items, 2)
	ids := []string{items[0].EventID, items[1].EventID}
	assert.Contains(t, ids, d.EventID)
	assert.Contains(t, ids, failed.EventID)

	verified := addCommit(t, led, "main", "verified", items)
	assert.NotContains(t, verified.PayloadStrings("labels"), "claim")
	assert.ElementsMatch(t, ids, verified.Refs.Events)
}

func TestAutoEvidenceDedupsManualIDs(t *testing.T) {
	_, led := setupLedger(t)
	ctx := context.Background()

	d, err := types.NewDecisionEvent("main", nil, "db.engine", "sqlite", "", "")
	require.NoError(t, err)
	require.NoError(t, led.AppendEvent(ctx, d))

	items, err := BuildAutoEvidence(ctx, led, "main", []string{d.EventID})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestEvidenceLineFormatting(t *testing.T) {
	line, ok := formatEvidenceItem(map[string]any{"event_id": "evt_a", "why": "passed"})
	require.True(t, ok)
	assert.Equal(t, "evt_a: passed", line)

	line, ok = formatEvidenceItem(map[string]any{"blob": "blob:sha256:abc"})
	require.True(t, ok)
	assert.Equal(t, "blob:sha256:abc", line)

	line, ok = formatEvidenceItem("bare string evidence")
	require.True(t, ok)
	assert.Equal(t, "bare string evidence", line)

	_, ok = formatEvidenceItem(map[string]any{"why": "no target"})
	assert.False(t, ok)
}
