package views

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/fagemx/edda/internal/storage"
	"github.com/fagemx/edda/internal/store"
	"github.com/fagemx/edda/internal/types"
	"github.com/fagemx/edda/internal/workspace"
)

// Pather is implemented by both ledger backends to expose the workspace
// layout for view writing.
type Pather interface {
	Paths() workspace.Paths
}

// RebuildBranch regenerates all view files for one branch and returns its
// snapshot. Files are written atomically so rebuilding is safe to run
// concurrently with readers.
func RebuildBranch(ctx context.Context, led storage.Ledger, branch string) (*BranchSnapshot, error) {
	paths, err := ledgerPaths(led)
	if err != nil {
		return nil, err
	}
	snap, err := BuildBranchSnapshot(ctx, led, branch)
	if err != nil {
		return nil, err
	}
	dir := paths.BranchDir(branch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating branch view dir: %w", err)
	}

	head, err := led.HeadBranch(ctx)
	if err != nil {
		return nil, err
	}
	events, err := led.IterEvents(ctx)
	if err != nil {
		return nil, err
	}
	var branchEvents []types.Event
	for _, e := range events {
		if e.Branch == branch {
			branchEvents = append(branchEvents, e)
		}
	}

	if err := store.WriteAtomic(filepath.Join(dir, "commit.md"), renderCommitMD(snap)); err != nil {
		return nil, err
	}
	if err := store.WriteAtomic(filepath.Join(dir, "log.md"), renderLogMD(branchEvents)); err != nil {
		return nil, err
	}
	metadata, err := renderMetadataYAML(snap, head)
	if err != nil {
		return nil, err
	}
	if err := store.WriteAtomic(filepath.Join(dir, "metadata.yaml"), metadata); err != nil {
		return nil, err
	}
	if err := store.WriteAtomic(filepath.Join(dir, "main.md"), renderMainMD(snap, head)); err != nil {
		return nil, err
	}
	return snap, nil
}

// RebuildAll regenerates views for every branch and refreshes the
// branches.json summary. Branch rebuilds run concurrently.
func RebuildAll(ctx context.Context, led storage.Ledger) ([]*BranchSnapshot, error) {
	branches, err := ListBranches(ctx, led)
	if err != nil {
		return nil, err
	}

	snaps := make([]*BranchSnapshot, len(branches))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, branch := range branches {
		g.Go(func() error {
			snap, err := RebuildBranch(gctx, led, branch)
			if err != nil {
				return err
			}
			mu.Lock()
			snaps[i] = snap
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := writeBranchesSummary(ctx, led, snaps); err != nil {
		return nil, err
	}
	return snaps, nil
}

// ListBranches returns every branch named by events (or branch_create
// payloads), always including "main", sorted.
func ListBranches(ctx context.Context, led storage.Ledger) ([]string, error) {
	events, err := led.IterEvents(ctx)
	if err != nil {
		return nil, err
	}
	set := map[string]bool{"main": true}
	for _, e := range events {
		if strings.TrimSpace(e.Branch) != "" {
			set[e.Branch] = true
		}
		if e.EventType == types.TypeBranchCreate {
			if name := strings.TrimSpace(e.PayloadString("name")); name != "" {
				set[name] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for b := range set {
		out = append(out, b)
	}
	sort.Strings(out)
	return out, nil
}

func ledgerPaths(led storage.Ledger) (workspace.Paths, error) {
	p, ok := led.(Pather)
	if !ok {
		return workspace.Paths{}, fmt.Errorf("ledger backend does not expose workspace paths")
	}
	return p.Paths(), nil
}

func writeBranchesSummary(ctx context.Context, led storage.Ledger, snaps []*BranchSnapshot) error {
	branches := map[string]any{}
	for _, s := range snaps {
		branches[s.Branch] = map[string]any{
			"created_at":     s.CreatedAt,
			"last_event_id":  s.LastEventID,
			"last_commit_id": s.LastCommitID,
		}
	}
	doc, err := json.MarshalIndent(map[string]any{"branches": branches}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling branches summary: %w", err)
	}
	return led.SetBranchesJSON(ctx, doc)
}

func orEmpty(s string) string {
	if s == "" {
		return "(empty)"
	}
	return s
}

func renderCommitMD(snap *BranchSnapshot) []byte {
	var b strings.Builder
	for _, c := range snap.Commits {
		fmt.Fprintf(&b, "## %s %s — %s\n\n", c.TS, c.EventID, c.Title)
		fmt.Fprintf(&b, "- Purpose: %s\n", orEmpty(c.Purpose))
		fmt.Fprintf(&b, "- Previous Progress Summary: %s\n", orEmpty(c.PrevSummary))
		fmt.Fprintf(&b, "- This Commit's Contribution: %s\n", orEmpty(c.Contribution))
		b.WriteString("- Evidence:\n")
		if len(c.EvidenceLines) == 0 {
			b.WriteString("  - (none)\n")
		} else {
			for _, e := range c.EvidenceLines {
				fmt.Fprintf(&b, "  - %s\n", e)
			}
		}
		b.WriteString("- Labels: ")
		if len(c.Labels) == 0 {
			b.WriteString("(none)\n\n")
		} else {
			b.WriteString(strings.Join(c.Labels, ", "))
			b.WriteString("\n\n")
		}
	}
	return []byte(b.String())
}

func renderLogMD(events []types.Event) []byte {
	var b strings.Builder
	for _, e := range events {
		switch e.EventType {
		case types.TypeNote:
			role := e.PayloadString("role")
			if role == "" {
				role = "user"
			}
			text := e.PayloadString("text")
			tags := strings.Join(e.PayloadStrings("tags"), ",")
			if tags == "" {
				fmt.Fprintf(&b, "[%s] NOTE(%s): %s (%s)\n", e.TS, role, text, e.EventID)
			} else {
				fmt.Fprintf(&b, "[%s] NOTE(%s) tags=%s: %s (%s)\n", e.TS, role, tags, text, e.EventID)
			}
		case types.TypeCmd:
			argv := strings.Join(e.PayloadStrings("argv"), " ")
			fmt.Fprintf(&b, "[%s] CMD exit=%d: %s (stdout=%s, stderr=%s) (%s)\n",
				e.TS, payloadInt(e.Payload, "exit_code"), argv,
				e.PayloadString("stdout_blob"), e.PayloadString("stderr_blob"), e.EventID)
		case types.TypeCommit:
			fmt.Fprintf(&b, "[%s] COMMIT: %s (%s)\n", e.TS, e.PayloadString("title"), e.EventID)
		case types.TypeRebuild:
			fmt.Fprintf(&b, "[%s] REBUILD scope=%s reason=%s (%s)\n",
				e.TS, e.PayloadString("scope"), e.PayloadString("reason"), e.EventID)
		case types.TypeBranchCreate:
			fmt.Fprintf(&b, "[%s] BRANCH_CREATE: %s purpose=%q (%s)\n",
				e.TS, e.PayloadString("name"), e.PayloadString("purpose"), e.EventID)
		case types.TypeBranchSwitch:
			fmt.Fprintf(&b, "[%s] SWITCH: %s -> %s (%s)\n",
				e.TS, e.PayloadString("from"), e.PayloadString("to"), e.EventID)
		case types.TypeMerge:
			fmt.Fprintf(&b, "[%s] MERGE: %s -> %s adopted=%d reason=%q (%s)\n",
				e.TS, e.PayloadString("src"), e.PayloadString("dst"),
				len(e.PayloadStrings("adopted_commits")), e.PayloadString("reason"), e.EventID)
		case types.TypeApproval:
			stage := e.PayloadString("stage_id")
			if stage == "" {
				fmt.Fprintf(&b, "[%s] APPROVAL %s by=%s draft=%s (%s)\n",
					e.TS, e.PayloadString("decision"), e.PayloadString("actor"),
					e.PayloadString("draft_id"), e.EventID)
			} else {
				fmt.Fprintf(&b, "[%s] APPROVAL %s by=%s draft=%s stage=%s role=%s (%s)\n",
					e.TS, e.PayloadString("decision"), e.PayloadString("actor"),
					e.PayloadString("draft_id"), stage, e.PayloadString("role"), e.EventID)
			}
		case types.TypeApprovalRequest:
			fmt.Fprintf(&b, "[%s] APPROVAL_REQUEST draft=%s stage=%s role=%s assignees=%s (%s)\n",
				e.TS, e.PayloadString("draft_id"), e.PayloadString("stage_id"),
				e.PayloadString("role"), strings.Join(e.PayloadStrings("assignees"), ","), e.EventID)
		default:
			fmt.Fprintf(&b, "[%s] %s (%s)\n", e.TS, strings.ToUpper(e.EventType), e.EventID)
		}
	}
	return []byte(b.String())
}

type metadataYAML struct {
	RepoRoot     string `yaml:"repo_root"`
	CreatedAt    string `yaml:"created_at"`
	Head         string `yaml:"head"`
	Branch       string `yaml:"branch"`
	LastEventID  string `yaml:"last_event_id"`
	LastCommitID string `yaml:"last_commit_id"`
}

func renderMetadataYAML(snap *BranchSnapshot, head string) ([]byte, error) {
	m := metadataYAML{
		RepoRoot:     ".",
		CreatedAt:    snap.CreatedAt,
		Head:         head,
		Branch:       snap.Branch,
		LastEventID:  snap.LastEventID,
		LastCommitID: snap.LastCommitID,
	}
	out, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata.yaml: %w", err)
	}
	return out, nil
}

func renderMainMD(snap *BranchSnapshot, head string) []byte {
	var b strings.Builder
	b.WriteString("# MAIN\n\n")
	fmt.Fprintf(&b, "- head: %s\n", head)
	fmt.Fprintf(&b, "- branch: %s\n", snap.Branch)
	fmt.Fprintf(&b, "- uncommitted_events: %d\n", snap.UncommittedEvents)
	if snap.LastCommit != nil {
		fmt.Fprintf(&b, "- last_commit: %s %s %q\n",
			snap.LastCommit.TS, snap.LastCommit.EventID, snap.LastCommit.Title)
	} else {
		b.WriteString("- last_commit: (none)\n")
	}
	if n := len(snap.Merges); n > 0 {
		m := snap.Merges[n-1]
		fmt.Fprintf(&b, "- last_merge: %s %s %s->%s adopted=%d\n",
			m.TS, m.EventID, m.Src, m.Dst, len(m.AdoptedCommits))
	} else {
		b.WriteString("- last_merge: (none)\n")
	}
	return []byte(b.String())
}
