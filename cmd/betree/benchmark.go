package main

import (
	"fmt"
	"math/rand"
	"time"

	"betreestore/betree"
	"betreestore/internal/script"

	"github.com/spf13/cobra"
)

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Time a random workload against a tree with no correctness checking",
	RunE:  runBenchmark,
}

var benchCfg config

func init() {
	bindCommonFlags(benchmarkCmd, &benchCfg)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	if benchCfg.backingDir == "" {
		return fmt.Errorf("-d backing-dir is required: %w", exitUsage)
	}

	t, sp, err := openTree(benchCfg)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(benchCfg.seed))
	start := time.Now()
	for i := 0; i < benchCfg.ops; i++ {
		key := rng.Uint64() % benchCfg.keySpace
		switch script.Kind(rng.Intn(4)) {
		case script.Insert:
			err = t.Insert(key, valueFor(key))
		case script.Update:
			err = t.Update(key, valueFor(key))
		case script.Delete:
			err = t.Erase(key)
		case script.Query:
			_, qerr := t.Query(key)
			if qerr != nil && qerr != betree.ErrNotFound {
				err = qerr
			}
		}
		if err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	if err := sp.Checkpoint(); err != nil {
		return err
	}

	fmt.Printf("betree: %d operations in %s (%.0f ops/sec)\n",
		benchCfg.ops, elapsed, float64(benchCfg.ops)/elapsed.Seconds())
	return nil
}
