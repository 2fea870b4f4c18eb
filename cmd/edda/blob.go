package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fagemx/edda/internal/blob"
	"github.com/fagemx/edda/internal/config"
	"github.com/fagemx/edda/internal/storage"
)

var blobCmd = &cobra.Command{
	Use:   "blob",
	Short: "Manage the content-addressed blob store",
}

var blobPutClass string

var blobPutCmd = &cobra.Command{
	Use:   "put [file]",
	Short: "Store bytes from a file (or stdin) and print the blob ref",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		var data []byte
		if len(args) == 1 {
			data, err = os.ReadFile(args[0]) // #nosec G304 - user-provided file
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return err
		}

		lock, err := paths.AcquireLock()
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		class := blob.ClassTraceNoise
		if blobPutClass != "" {
			if class, err = blob.ParseClass(blobPutClass); err != nil {
				return err
			}
		}
		ref, err := blob.PutClassified(paths, data, class)
		if err != nil {
			return err
		}
		fmt.Println(ref)
		return nil
	},
}

var blobGetCmd = &cobra.Command{
	Use:   "get <ref>",
	Short: "Print a blob's contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		path, err := blob.GetPath(paths, args[0])
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path) // #nosec G304 - resolved blob path
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

var blobListArchived bool

var blobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blobs with class and pin state",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		var blobs []blob.Info
		if blobListArchived {
			blobs, err = blob.ListArchived(paths)
		} else {
			blobs, err = blob.List(paths)
		}
		if err != nil {
			return err
		}
		meta, err := blob.LoadMeta(paths.BlobMetaJSON)
		if err != nil {
			return err
		}
		for _, info := range blobs {
			entry := meta.Get(info.Hash)
			pin := ""
			if entry.Pinned {
				pin = " [pinned]"
			}
			printf("%s  %8d  %s%s\n", info.Hash, info.Size, entry.Class, pin)
		}
		return nil
	},
}

var classifyBy string

var blobClassifyCmd = &cobra.Command{
	Use:   "classify <hash> <class>",
	Short: "Set a blob's class (artifact, decision_evidence, trace_noise)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		class, err := blob.ParseClass(args[1])
		if err != nil {
			return err
		}

		lock, err := paths.AcquireLock()
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		meta, err := blob.LoadMeta(paths.BlobMetaJSON)
		if err != nil {
			return err
		}
		meta.SetClass(args[0], class, classifyBy)
		if err := blob.SaveMeta(paths.BlobMetaJSON, meta); err != nil {
			return err
		}
		printf("Classified %s as %s\n", args[0], class)
		return nil
	},
}

var blobPinCmd = &cobra.Command{
	Use:   "pin <hash>",
	Short: "Pin a blob so GC never removes it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setPin(args[0], true) },
}

var blobUnpinCmd = &cobra.Command{
	Use:   "unpin <hash>",
	Short: "Unpin a blob",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setPin(args[0], false) },
}

func setPin(hash string, pinned bool) error {
	paths, err := findWorkspace()
	if err != nil {
		return err
	}
	lock, err := paths.AcquireLock()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	meta, err := blob.LoadMeta(paths.BlobMetaJSON)
	if err != nil {
		return err
	}
	meta.SetPinned(hash, pinned)
	if err := blob.SaveMeta(paths.BlobMetaJSON, meta); err != nil {
		return err
	}
	printf("Pinned=%v for %s\n", pinned, hash)
	return nil
}

var blobArchiveCmd = &cobra.Command{
	Use:   "archive <hash>",
	Short: "Move a blob to the archive (still resolvable)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := findWorkspace()
		if err != nil {
			return err
		}
		lock, err := paths.AcquireLock()
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		size, err := blob.Archive(paths, args[0])
		if err != nil {
			return err
		}
		printf("Archived %s (%d bytes)\n", args[0], size)
		return nil
	},
}

var (
	gcDryRun          bool
	gcPruneTombstones bool
)

var blobGCCmd = &cobra.Command{
	Use:   "gc",
	Short: "Run the blob reaper per the configured GC policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, led, err := openLedger()
		if err != nil {
			return err
		}
		defer func() { _ = led.Close() }()
		ctx := cmd.Context()

		cfg, err := config.Load(paths.ConfigJSON)
		if err != nil {
			return err
		}

		// A blob is referenced iff some event carries its ref.
		events, err := led.IterEvents(ctx)
		if err != nil {
			return err
		}
		referenced := map[string]bool{}
		for _, e := range events {
			for _, ref := range e.Refs.Blobs {
				if hash, err := blob.ParseRef(ref); err == nil {
					referenced[hash] = true
				}
			}
		}

		lock, err := paths.AcquireLock()
		if err != nil {
			return err
		}
		defer func() { _ = lock.Release() }()

		result, err := blob.Reap(paths, referenced, blob.ReapOptions{
			KeepDays: cfg.BlobKeepDays(),
			QuotaMB:  cfg.GC.BlobQuotaMB,
			DryRun:   gcDryRun,
		})
		if err != nil {
			return err
		}
		printf("Examined %d blobs, removed %d (%d bytes)\n",
			result.Examined, len(result.Removed), result.BytesFreed)

		// Mirror tombstones into the SQLite backend when active.
		if recorder, ok := led.(storage.TombstoneRecorder); ok && !gcDryRun {
			records, _, err := blob.LoadTombstones(paths.TombstonesJSONL)
			if err == nil {
				for _, t := range records {
					_ = recorder.RecordTombstone(ctx, t)
				}
			}
		}

		if gcPruneTombstones {
			kept, pruned, err := blob.PruneTombstones(paths.TombstonesJSONL, int(cfg.BlobKeepDays()))
			if err != nil {
				return err
			}
			printf("Tombstones: kept %d, pruned %d\n", kept, pruned)
		}
		return nil
	},
}

func init() {
	blobPutCmd.Flags().StringVar(&blobPutClass, "class", "", "classification for the stored blob")
	blobListCmd.Flags().BoolVar(&blobListArchived, "archived", false, "list archived blobs instead")
	blobClassifyCmd.Flags().StringVar(&classifyBy, "by", "user", "who performed the classification")
	blobGCCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "report without deleting")
	blobGCCmd.Flags().BoolVar(&gcPruneTombstones, "prune-tombstones", false, "also prune old tombstone records")
	blobCmd.AddCommand(blobPutCmd, blobGetCmd, blobListCmd, blobClassifyCmd,
		blobPinCmd, blobUnpinCmd, blobArchiveCmd, blobGCCmd)
	rootCmd.AddCommand(blobCmd)
}
