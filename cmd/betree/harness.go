package main

import (
	"strconv"

	"betreestore/betree"
	"betreestore/internal/trace"
	"betreestore/storage/cache"
	"betreestore/storage/codec"
	"betreestore/storage/store"
	"betreestore/swapspace"

	"github.com/spf13/cobra"
)

// betreeHandle and spaceHandle name this harness's one fixed
// instantiation so the rest of the package doesn't repeat the type
// parameters everywhere.
type betreeHandle = betree.Betree[uint64, string]
type spaceHandle = swapspace.Space

// config holds the flag set every subcommand shares: backing location
// and tree/cache sizing, key-space and workload shape for the random
// generator, and script file paths.
type config struct {
	backingDir   string
	maxNodeSize  int
	minFlushSize int
	cacheSize    int
	keySpace     uint64
	ops          int
	seed         int64
	inScript     string
	outScript    string
	verbose      bool
}

func bindCommonFlags(cmd *cobra.Command, cfg *config) {
	cmd.Flags().StringVarP(&cfg.backingDir, "backing-dir", "d", "", "directory for the on-disk backing store (required)")
	cmd.Flags().IntVarP(&cfg.maxNodeSize, "max-node-size", "N", 1024, "maximum node size before a split")
	cmd.Flags().IntVarP(&cfg.minFlushSize, "min-flush-size", "f", 64, "minimum buffered batch size before a flush")
	cmd.Flags().IntVarP(&cfg.cacheSize, "cache-size", "C", 64, "resident object cap for the cache manager")
	cmd.Flags().Uint64VarP(&cfg.keySpace, "key-space", "k", 1024, "number of distinct keys the random generator draws from")
	cmd.Flags().IntVarP(&cfg.ops, "ops", "t", 4096, "number of operations to generate")
	cmd.Flags().Int64VarP(&cfg.seed, "seed", "s", 1, "PRNG seed for the random generator")
	cmd.Flags().StringVarP(&cfg.inScript, "input-script", "i", "", "replay operations from this script instead of generating them")
	cmd.Flags().StringVarP(&cfg.outScript, "output-script", "o", "", "record generated operations (with verified query results) to this script")
	cmd.Flags().BoolVar(&cfg.verbose, "trace", false, "enable development-mode tracing")
}

// valueFor is the harness's deterministic value for a generated or
// replayed key: scripts carry only the key for Inserting/Updating, so
// the value a key maps to is always its own decimal string.
func valueFor(key uint64) string {
	return strconv.FormatUint(key, 10)
}

func concat(a, b string) string { return a + b }

// openTree wires a FileStore, an LRU cache manager, a swap space
// dedicated to *betree.Node[uint64, string], and the tree over it,
// following New's documented contract that a space is dedicated to one
// node type for its whole life.
func openTree(cfg config) (*betree.Betree[uint64, string], *swapspace.Space, error) {
	var log = trace.Nop()
	if cfg.verbose {
		dev, err := trace.NewDevelopment()
		if err != nil {
			return nil, nil, err
		}
		log = dev
	}

	backing, err := store.NewFileStore(cfg.backingDir)
	if err != nil {
		return nil, nil, err
	}
	cacheMgr := cache.NewLRU(cfg.cacheSize, log)

	factory := betree.NewNodeFactory[uint64, string](codec.Uint64, codec.String)
	sp, err := swapspace.NewSpace(backing, cacheMgr, factory, swapspace.WithTracer(log))
	if err != nil {
		return nil, nil, err
	}

	less := func(a, b uint64) bool { return a < b }
	t, err := betree.New[uint64, string](
		sp, codec.Uint64, codec.String, less, concat, "",
		cfg.maxNodeSize, cfg.minFlushSize,
		betree.WithTracer[uint64, string](log),
	)
	if err != nil {
		return nil, nil, err
	}
	return t, sp, nil
}
