// Package cmd is the CLI entrypoint (SPEC_FULL.md §10): a quill root
// command with persistent flags for logging, mirroring the teacher's
// cmd/maho.go shape, plus a run subcommand that drives the DML execution
// core end to end from the command line.
package cmd

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/leftmike/quill/config"
	"github.com/leftmike/quill/execute"
	"github.com/leftmike/quill/session"
)

var (
	rootCmd = &cobra.Command{
		Use:               "quill",
		Short:             "Drive the DML execution core",
		Long: "quill is a demonstration CLI for the DELETE/UPDATE/INSERT/MERGE\n" +
			"execution core: it runs a scripted list of operations against a\n" +
			"table and prints the affected row count plus any RETURNING,\n" +
			"generated-keys, or delta-table result.",
		PersistentPreRunE: rootPreRun,
		PersistentPostRun: rootPostRun,
	}

	logFile   = "quill.log"
	logLevel  = "info"
	logStderr = false
	logWriter *os.File

	tunablesFile = "quill.hcl"
	noTunables   = false

	tunables   = config.NewConfig(flag.NewFlagSet("quill", flag.ContinueOnError))
	execOpts   = execute.DefaultOptions()
	sesMode    = session.DefaultMode()
	lockWait   time.Duration
)

func init() {
	fs := rootCmd.PersistentFlags()

	fs.StringVar(&logFile, "log-file", logFile, "`file` to use for logging")
	fs.StringVar(&logLevel, "log-level", logLevel,
		"log level: trace, debug, info, warn, error, fatal, or panic")
	fs.BoolVarP(&logStderr, "log-stderr", "s", logStderr, "log to standard error")

	fs.StringVar(&tunablesFile, "tunables-file", tunablesFile,
		"`file` of executor tunables, in HCL")
	fs.BoolVar(&noTunables, "no-tunables", noTunables, "don't load the tunables file")

	registerTunables()
}

// registerTunables wires the executor's cancellation poll intervals, the
// recheck retry bound (SPEC_FULL.md §12), the lock-wait timeout default,
// and the session's identity-capture default (§4.1 eligibility) into the
// config package, loadable from quill.hcl the same way the teacher's
// cmd/maho.go loads maho.hcl.
func registerTunables() {
	tunables.Var(&execOpts.ScanPollInterval, "scan-poll-interval").
		Usage("rows between cancellation checks during a scan (§4.2, §5)").Int(127)

	tunables.Var(&execOpts.PostScanPollInterval, "post-scan-poll-interval").
		Usage("rows between cancellation checks while applying buffered rows").Int(128)

	tunables.Var(&execOpts.MaxRecheckRetries, "max-recheck-retries").
		Usage("lock-and-recheck misses tolerated before a LockSetChanged error").Int(3)

	tunables.Var(&lockWait, "lock-wait").
		Usage("default row/table lock-wait timeout").Duration(5 * time.Second)

	tunables.Var(&sesMode.TakeInsertedIdentity, "take-inserted-identity").
		Usage("capture the last inserted identity value (§4.1 eligibility)").Bool(true)
}

func rootPreRun(cmd *cobra.Command, args []string) error {
	if tunablesFile != "" && !noTunables {
		if _, err := os.Stat(tunablesFile); err == nil {
			if err := tunables.Load(tunablesFile); err != nil {
				return fmt.Errorf("quill: tunables: %s", err)
			}
		}
	}
	if err := tunables.Env(); err != nil {
		return fmt.Errorf("quill: tunables: %s", err)
	}

	if !logStderr && logFile != "" {
		var err error
		logWriter, err = os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			logWriter = nil
			return fmt.Errorf("quill: %s", err)
		}
		log.SetOutput(logWriter)
	}

	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("quill: %s", err)
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{DisableLevelTruncation: true})

	log.WithField("pid", os.Getpid()).Info("quill starting")
	return nil
}

func rootPostRun(cmd *cobra.Command, args []string) {
	log.WithField("pid", os.Getpid()).Info("quill done")

	if logWriter != nil {
		logWriter.Close()
	}
}

// Execute runs the root command; main.go's only call into this package.
func Execute() error {
	return rootCmd.Execute()
}
