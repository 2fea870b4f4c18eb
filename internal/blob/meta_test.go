package blob

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetaRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob_meta.json")

	m := Meta{}
	m.SetClass("abc123", ClassArtifact, "user")
	m.SetPinned("abc123", true)
	m.SetClass("def456", ClassTraceNoise, "auto")

	require.NoError(t, SaveMeta(path, m))
	loaded, err := LoadMeta(path)
	require.NoError(t, err)

	assert.Len(t, loaded, 2)
	assert.Equal(t, ClassArtifact, loaded.Get("abc123").Class)
	assert.True(t, loaded.Get("abc123").Pinned)
	assert.Equal(t, ClassTraceNoise, loaded.Get("def456").Class)
	assert.False(t, loaded.Get("def456").Pinned)
}

func TestMetaDefaults(t *testing.T) {
	m := Meta{}
	entry := m.Get("nonexistent")
	assert.Equal(t, ClassTraceNoise, entry.Class)
	assert.False(t, entry.Pinned)
}

func TestLoadMetaMissingReturnsEmpty(t *testing.T) {
	m, err := LoadMeta(filepath.Join(t.TempDir(), "blob_meta.json"))
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestParseClass(t *testing.T) {
	for _, s := range []string{"artifact", "decision_evidence", "trace_noise"} {
		c, err := ParseClass(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(c))
	}
	_, err := ParseClass("invalid")
	assert.Error(t, err)
}

func TestGCPriorityOrder(t *testing.T) {
	assert.Less(t, ClassTraceNoise.GCPriority(), ClassDecisionEvidence.GCPriority())
	assert.Less(t, ClassDecisionEvidence.GCPriority(), ClassArtifact.GCPriority())
}

func TestSetClassUpdatesTimestamp(t *testing.T) {
	m := Meta{}
	m.SetClass("abc", ClassArtifact, "test")
	entry := m.Get("abc")
	assert.NotEmpty(t, entry.ClassifiedAt)
	assert.Equal(t, "test", entry.ClassifiedBy)
}

func TestReclassifyRecordsHistory(t *testing.T) {
	m := Meta{}

	// Initial classification records no history.
	m.SetClass("abc", ClassTraceNoise, "auto")
	assert.Empty(t, m.Get("abc").ClassHistory)

	// Reclassify records one entry.
	m.SetClass("abc", ClassArtifact, "user")
	entry := m.Get("abc")
	assert.Equal(t, ClassArtifact, entry.Class)
	require.Len(t, entry.ClassHistory, 1)
	assert.Equal(t, ClassTraceNoise, entry.ClassHistory[0].From)
	assert.Equal(t, ClassArtifact, entry.ClassHistory[0].To)
	assert.Equal(t, "user", entry.ClassHistory[0].By)

	// Second reclassification appends.
	m.SetClass("abc", ClassDecisionEvidence, "admin")
	entry = m.Get("abc")
	require.Len(t, entry.ClassHistory, 2)
	assert.Equal(t, ClassArtifact, entry.ClassHistory[1].From)

	// Same class again records nothing.
	m.SetClass("abc", ClassDecisionEvidence, "admin")
	assert.Len(t, m.Get("abc").ClassHistory, 2)
}

func TestReclassifyHistorySurvivesRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob_meta.json")

	m := Meta{}
	m.SetClass("abc", ClassTraceNoise, "auto")
	m.SetClass("abc", ClassArtifact, "user")
	require.NoError(t, SaveMeta(path, m))

	loaded, err := LoadMeta(path)
	require.NoError(t, err)
	history := loaded.Get("abc").ClassHistory
	require.Len(t, history, 1)
	assert.Equal(t, ClassTraceNoise, history[0].From)
	assert.Equal(t, ClassArtifact, history[0].To)
}
