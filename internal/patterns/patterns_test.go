package patterns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fagemx/edda/internal/workspace"
)

func TestSaveAndList(t *testing.T) {
	p := workspace.Discover(t.TempDir())
	require.NoError(t, p.EnsureLayout())

	require.NoError(t, Save(p, Pattern{
		Name:        "retry-loop",
		Description: "wrap flaky calls in exponential backoff",
		Tags:        []string{"resilience"},
		Suggest:     "use backoff.Retry",
	}))
	require.NoError(t, Save(p, Pattern{Name: "atomic-write", Description: "temp file + rename"}))

	patterns, err := List(p)
	require.NoError(t, err)
	require.Len(t, patterns, 2)
	// Sorted by name.
	assert.Equal(t, "atomic-write", patterns[0].Name)
	assert.Equal(t, "retry-loop", patterns[1].Name)
	assert.Equal(t, []string{"resilience"}, patterns[1].Tags)
}

func TestListSkipsUnparsableFiles(t *testing.T) {
	p := workspace.Discover(t.TempDir())
	require.NoError(t, p.EnsureLayout())

	require.NoError(t, os.WriteFile(filepath.Join(p.PatternsDir, "broken.toml"), []byte("= not toml"), 0o644))
	require.NoError(t, Save(p, Pattern{Name: "good"}))

	patterns, err := List(p)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "good", patterns[0].Name)
}

func TestListMissingDirIsEmpty(t *testing.T) {
	p := workspace.Discover(t.TempDir())
	patterns, err := List(p)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestSaveRequiresName(t *testing.T) {
	p := workspace.Discover(t.TempDir())
	assert.Error(t, Save(p, Pattern{}))
}

func TestNameDefaultsToFilename(t *testing.T) {
	p := workspace.Discover(t.TempDir())
	require.NoError(t, p.EnsureLayout())
	require.NoError(t, os.WriteFile(filepath.Join(p.PatternsDir, "unnamed.toml"),
		[]byte("description = \"no name field\"\n"), 0o644))

	patterns, err := List(p)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "unnamed", patterns[0].Name)
}
