package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// FindRoot walks parent directories from start looking for one containing
// `.edda/`. If none is found it falls back to git worktree resolution:
// a `.git` file with `gitdir: .../worktrees/<name>` resolves to the main
// repository root, which is then re-checked for `.edda/`. Worktrees thereby
// share the main workspace transparently.
//
// Returns "" when no workspace is found by either method.
func FindRoot(start string) string {
	cur := start
	for {
		if hasEddaDir(cur) {
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		cur = parent
	}

	if root := resolveGitRepoRoot(start); root != "" && hasEddaDir(root) {
		return root
	}
	return ""
}

func hasEddaDir(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, ".edda"))
	return err == nil && info.IsDir()
}

// resolveGitRepoRoot walks up from start looking for `.git`:
//   - directory: that parent is the repo root (normal repo)
//   - file with `gitdir: .../worktrees/<name>`: resolve to the main repo root
//   - file without `/worktrees/` (e.g. submodule): use that directory
//   - not found: ""
func resolveGitRepoRoot(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		abs = start
	}
	cur := abs
	for {
		dotGit := filepath.Join(cur, ".git")
		info, err := os.Stat(dotGit)
		if err == nil {
			if info.IsDir() {
				return cur
			}
			content, err := os.ReadFile(dotGit) // #nosec G304 - .git file under walked root
			if err == nil {
				line := strings.TrimSpace(string(content))
				if gitdir, ok := strings.CutPrefix(line, "gitdir:"); ok {
					gitdir = strings.ReplaceAll(strings.TrimSpace(gitdir), "\\", "/")
					if pos := strings.Index(gitdir, "/worktrees/"); pos >= 0 {
						// gitdir points at <main>/.git/worktrees/<name>;
						// the main repo root is the parent of the common .git dir.
						commonGit := gitdir[:pos]
						return filepath.Dir(filepath.FromSlash(commonGit))
					}
				}
			}
			// .git file but not a worktree (e.g. submodule).
			return cur
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return ""
		}
		cur = parent
	}
}
