// Command betree is the reference test harness: it drives a Betree
// through either a recorded operation script or a seeded random
// workload, checking results against an oracle map, and can also time
// a pure random workload with no verification.
//
// Grounded on NutellaDB's dbcli/interface.go cobra root command, with
// the fixed subcommand/argument style of a one-off admin tool replaced
// by the flag set this harness's script grammar calls for.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// exitCode lets a subcommand's Run signal a specific process exit
// status without cobra printing its own usage/error banner for
// expected, well-formed failures (a failed verification, a malformed
// script).
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit %d", int(e)) }

const (
	exitOK          exitCode = 0
	exitUsage       exitCode = 1
	exitScriptParse exitCode = 3
	exitScriptRead  exitCode = 4
)

var rootCmd = &cobra.Command{
	Use:           "betree",
	Short:         "Reference harness for the betreestore ordered index",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(benchmarkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		code := exitUsage
		var ec exitCode
		if errors.As(err, &ec) {
			code = ec
		}
		if code == exitUsage {
			fmt.Fprintf(os.Stderr, "betree: %v\n", err)
		}
		os.Exit(int(code))
	}
}
