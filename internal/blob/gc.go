package blob

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fagemx/edda/internal/debug"
	"github.com/fagemx/edda/internal/workspace"
)

// ReapOptions configures one reaper run.
type ReapOptions struct {
	KeepDays uint32
	QuotaMB  uint32 // 0 = no quota escalation
	DryRun   bool
}

// ReapResult summarizes one reaper run.
type ReapResult struct {
	Removed    []string
	BytesFreed int64
	Examined   int
}

type reapCandidate struct {
	hash       string
	size       int64
	mtime      time.Time
	class      Class
	pinned     bool
	referenced bool
}

// Reap deletes expired blobs in priority order: (a) unreferenced blobs past
// keep_days, (b) referenced trace_noise past keep_days, (c) decision
// evidence past keep_days while the quota is exceeded. Artifacts and pinned
// blobs are never auto-removed. referenced holds the hex hashes carried in
// any ledger event's refs.blobs.
func Reap(paths workspace.Paths, referenced map[string]bool, opts ReapOptions) (ReapResult, error) {
	var result ReapResult

	meta, err := LoadMeta(paths.BlobMetaJSON)
	if err != nil {
		return result, err
	}
	blobs, err := List(paths)
	if err != nil {
		return result, err
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -int(opts.KeepDays))
	var candidates []reapCandidate
	var totalSize int64
	for _, b := range blobs {
		result.Examined++
		totalSize += b.Size
		entry := meta.Get(b.Hash)
		info, err := os.Stat(filepath.Join(paths.BlobsDir, b.Hash))
		if err != nil {
			continue
		}
		candidates = append(candidates, reapCandidate{
			hash:       b.Hash,
			size:       b.Size,
			mtime:      info.ModTime().UTC(),
			class:      entry.Class,
			pinned:     entry.Pinned,
			referenced: referenced[b.Hash],
		})
	}
	// Oldest first so quota escalation removes the stalest evidence.
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].mtime.Before(candidates[j].mtime)
	})

	remove := func(c reapCandidate, reason string) error {
		if opts.DryRun {
			result.Removed = append(result.Removed, c.hash)
			result.BytesFreed += c.size
			return nil
		}
		freed, err := Remove(paths, c.hash, string(c.class), reason)
		if err != nil {
			return err
		}
		result.Removed = append(result.Removed, c.hash)
		result.BytesFreed += freed
		debug.Logf("gc: removed blob %s (%s, %d bytes)\n", c.hash, reason, freed)
		return nil
	}

	removed := map[string]bool{}

	// Pass (a): unreferenced blobs older than keep_days.
	for _, c := range candidates {
		if removed[c.hash] || c.referenced || c.pinned || c.class == ClassArtifact {
			continue
		}
		if c.mtime.Before(cutoff) {
			if err := remove(c, "unreferenced, past keep_days"); err != nil {
				return result, err
			}
			removed[c.hash] = true
		}
	}

	// Pass (b): referenced trace_noise older than keep_days.
	for _, c := range candidates {
		if removed[c.hash] || !c.referenced || c.pinned || c.class != ClassTraceNoise {
			continue
		}
		if c.mtime.Before(cutoff) {
			if err := remove(c, "trace_noise, past keep_days"); err != nil {
				return result, err
			}
			removed[c.hash] = true
		}
	}

	// Pass (c): decision_evidence older than keep_days while over quota.
	if opts.QuotaMB > 0 {
		quotaBytes := int64(opts.QuotaMB) * 1024 * 1024
		for _, c := range candidates {
			if totalSize-result.BytesFreed <= quotaBytes {
				break
			}
			if removed[c.hash] || c.pinned || c.class != ClassDecisionEvidence {
				continue
			}
			if c.mtime.Before(cutoff) {
				if err := remove(c, "decision_evidence, quota exceeded"); err != nil {
					return result, err
				}
				removed[c.hash] = true
			}
		}
	}

	return result, nil
}
