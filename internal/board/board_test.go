package board

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fagemx/edda/internal/storage/jsonl"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/workspace"
)

func testProject(t *testing.T) string {
	t.Helper()
	t.Setenv("EDDA_STATE_DIR", t.TempDir())
	projectID := "test-project-abc12345"
	_, err := store.EnsureDirs(projectID)
	require.NoError(t, err)
	return projectID
}

func TestHeartbeatRoundTrip(t *testing.T) {
	projectID := testProject(t)

	require.NoError(t, WriteHeartbeat(projectID, "s1", SessionState{
		Label:        "worker-1",
		Branch:       "feat/auth",
		ClaimedPaths: []string{"src/auth/**"},
		TaskSubjects: []string{"implement login"},
	}))

	state, err := ReadSession(projectID, "s1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "worker-1", state.Label)
	assert.NotEmpty(t, state.LastHeartbeat)
	assert.True(t, state.IsActive(time.Now(), 120))
}

func TestReadSessionMissingIsNil(t *testing.T) {
	projectID := testProject(t)
	state, err := ReadSession(projectID, "nope")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestActiveSessionsFiltersStale(t *testing.T) {
	projectID := testProject(t)

	require.NoError(t, WriteHeartbeat(projectID, "fresh", SessionState{Label: "fresh"}))

	// Stale session: write a heartbeat, then backdate it.
	stale := SessionState{
		LastHeartbeat: time.Now().UTC().Add(-10 * time.Minute).Format(time.RFC3339),
		Label:         "stale",
	}
	data := `{"last_heartbeat":"` + stale.LastHeartbeat + `","label":"stale"}`
	path := filepath.Join(store.StateDir(projectID), "session.stale.json")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	active, err := ActiveSessions(projectID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "fresh", active[0].State.Label)

	all, err := ListSessions(projectID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// End-to-end scenario: coordination round-trip. S1 writes a heartbeat and
// a claim; a snapshot read from another process context observes both.
func TestCoordinationRoundTrip(t *testing.T) {
	projectID := testProject(t)
	ctx := context.Background()

	require.NoError(t, WriteHeartbeat(projectID, "s1", SessionState{Label: "worker-1"}))
	require.NoError(t, AppendClaim(projectID, "s1", "worker-1", []string{"src/auth/**"}))

	snap, err := BuildSnapshot(projectID)
	require.NoError(t, err)
	require.Len(t, snap.Active, 1)
	assert.Equal(t, "s1", snap.Active[0].SessionID)
	claim, ok := snap.Claims["worker-1"]
	require.True(t, ok)
	assert.Equal(t, []string{"src/auth/**"}, claim.Paths)

	// Binding lands in the ledger and on the board.
	p := workspace.Discover(t.TempDir())
	require.NoError(t, p.EnsureLayout())
	led, err := jsonl.Open(p)
	require.NoError(t, err)

	e, err := Bind(ctx, led, projectID, "s1", "worker-1", "api.framework", "chi", "stdlib-compatible router")
	require.NoError(t, err)
	assert.Equal(t, "note", e.EventType)

	snap, err = BuildSnapshot(projectID)
	require.NoError(t, err)
	require.Len(t, snap.Bindings["api"], 1)
	assert.Equal(t, "api.framework", snap.Bindings["api"][0].Key)
	assert.Equal(t, "chi", snap.Bindings["api"][0].Value)

	active, err := led.ActiveDecisions(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "api.framework", active[0].Key)
	assert.Equal(t, "chi", active[0].Value)
	assert.Equal(t, "main", active[0].Branch)
}

func TestBindSupersedesPriorBinding(t *testing.T) {
	projectID := testProject(t)
	ctx := context.Background()

	p := workspace.Discover(t.TempDir())
	require.NoError(t, p.EnsureLayout())
	led, err := jsonl.Open(p)
	require.NoError(t, err)

	_, err = Bind(ctx, led, projectID, "s1", "w1", "db.engine", "sqlite", "MVP")
	require.NoError(t, err)
	_, err = Bind(ctx, led, projectID, "s1", "w1", "db.engine", "postgres", "JSONB")
	require.NoError(t, err)

	active, err := led.ActiveDecisions(ctx, "", "")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "postgres", active[0].Value)
}

func TestRequestsBoundedWindow(t *testing.T) {
	projectID := testProject(t)

	for i := 0; i < recentRequestWindow+5; i++ {
		require.NoError(t, AppendRequest(projectID, "s1", "w1", "w2", "msg"))
	}
	snap, err := BuildSnapshot(projectID)
	require.NoError(t, err)
	assert.Len(t, snap.Requests, recentRequestWindow)
}

func TestTornTrailingLineSkipped(t *testing.T) {
	projectID := testProject(t)

	require.NoError(t, AppendClaim(projectID, "s1", "w1", []string{"a/**"}))

	// Simulate a torn write.
	path := filepath.Join(store.StateDir(projectID), "coordination.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"ts":"2026-01-01T00:00:00Z","kind":"claim","ses`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	entries, err := ReadLog(projectID)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// The claim written before the torn line still reads back; only the
	// torn record is lost.
	snap, err := BuildSnapshot(projectID)
	require.NoError(t, err)
	assert.Contains(t, snap.Claims, "w1")
}

func TestLatestClaimPerLabelWins(t *testing.T) {
	projectID := testProject(t)

	require.NoError(t, AppendClaim(projectID, "s1", "w1", []string{"a/**"}))
	require.NoError(t, AppendClaim(projectID, "s1", "w1", []string{"b/**"}))

	snap, err := BuildSnapshot(projectID)
	require.NoError(t, err)
	assert.Equal(t, []string{"b/**"}, snap.Claims["w1"].Paths)
}

func TestResolveSessionID(t *testing.T) {
	projectID := testProject(t)

	// Tier 1: explicit.
	sid, label := ResolveSessionID("explicit-id", projectID, "cli")
	assert.Equal(t, "explicit-id", sid)
	assert.Equal(t, "cli", label)

	// Tier 2: env var.
	t.Setenv("EDDA_SESSION_ID", "env-id")
	t.Setenv("EDDA_SESSION_LABEL", "env-label")
	sid, label = ResolveSessionID("", projectID, "cli")
	assert.Equal(t, "env-id", sid)
	assert.Equal(t, "env-label", label)
	t.Setenv("EDDA_SESSION_ID", "")
	t.Setenv("EDDA_SESSION_LABEL", "")

	// Tier 3: sole active heartbeat.
	require.NoError(t, WriteHeartbeat(projectID, "hb-session", SessionState{Label: "hb-label"}))
	sid, label = ResolveSessionID("", projectID, "cli")
	assert.Equal(t, "hb-session", sid)
	assert.Equal(t, "hb-label", label)

	// Tier 4: ambiguous heartbeats fall back to cli-<label>.
	require.NoError(t, WriteHeartbeat(projectID, "other-session", SessionState{Label: "other"}))
	sid, label = ResolveSessionID("", projectID, "cli")
	assert.Equal(t, "cli-cli", sid)
	assert.Equal(t, "cli", label)
}

func TestWatchEmitsOnChange(t *testing.T) {
	projectID := testProject(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ch, err := Watch(ctx, projectID)
	require.NoError(t, err)

	// Initial snapshot.
	select {
	case snap := <-ch:
		require.NotNil(t, snap)
	case <-ctx.Done():
		t.Fatal("no initial snapshot")
	}

	require.NoError(t, AppendClaim(projectID, "s1", "w1", []string{"x/**"}))

	select {
	case snap := <-ch:
		require.NotNil(t, snap)
		assert.Contains(t, snap.Claims, "w1")
	case <-ctx.Done():
		t.Fatal("no snapshot after change")
	}
	cancel()
}
