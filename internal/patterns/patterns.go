// Package patterns loads the workspace pattern library: reusable prompts
// and conventions stored as TOML documents under .edda/patterns/.
package patterns

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/fagemx/edda/internal/debug"
	"github.com/fagemx/edda/internal/workspace"
)

// Pattern is one library entry.
type Pattern struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description"`
	Tags        []string `toml:"tags"`
	Suggest     string   `toml:"suggest"`
}

// List loads all patterns from .edda/patterns/*.toml, sorted by name.
// Unparsable files are skipped with a debug note; the library is advisory.
func List(paths workspace.Paths) ([]Pattern, error) {
	entries, err := os.ReadDir(paths.PatternsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing patterns: %w", err)
	}

	var patterns []Pattern
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".toml") {
			continue
		}
		var p Pattern
		if _, err := toml.DecodeFile(filepath.Join(paths.PatternsDir, name), &p); err != nil {
			debug.Logf("patterns: skipping %s: %v\n", name, err)
			continue
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(name, ".toml")
		}
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Name < patterns[j].Name })
	return patterns, nil
}

// Save writes one pattern as <name>.toml under the patterns dir.
func Save(paths workspace.Paths, p Pattern) error {
	if p.Name == "" {
		return fmt.Errorf("pattern name is required")
	}
	if err := os.MkdirAll(paths.PatternsDir, 0o755); err != nil {
		return fmt.Errorf("creating patterns dir: %w", err)
	}
	f, err := os.Create(filepath.Join(paths.PatternsDir, p.Name+".toml")) // #nosec G304 - name validated above
	if err != nil {
		return fmt.Errorf("creating pattern file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(p); err != nil {
		return fmt.Errorf("encoding pattern: %w", err)
	}
	return nil
}
