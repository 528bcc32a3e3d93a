package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"paper_ledger/internal/app"
	"paper_ledger/internal/engine"

	"github.com/google/subcommands"
)

// --- replayCmd ---

type replayCmd struct {
	full bool
}

func (*replayCmd) Name() string     { return "replay" }
func (*replayCmd) Synopsis() string { return "rebuilds the ledger from the journal and prints it" }
func (*replayCmd) Usage() string {
	return `replay [-full]

Recovers the ledger the way serve does and prints its state as JSON.
With -full, snapshots are ignored and every journaled event is replayed.
`
}
func (c *replayCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.full, "full", false, "ignore snapshots and replay the whole journal")
}

func (c *replayCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	b, status := initQuiet()
	if b == nil {
		return status
	}
	defer b.Close()

	if b.Storage == nil {
		fmt.Fprintln(os.Stderr, "Error: storage is disabled in the configuration.")
		return subcommands.ExitUsageError
	}

	var (
		seq *engine.Sequencer
		err error
	)
	if c.full {
		seq, err = b.ReplayJournal(ctx)
	} else {
		seq, err = b.BuildSequencer(ctx, nil)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error rebuilding ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	view := seq.View()
	return printJSON(map[string]any{"lastSeq": view.Seq, "ledger": view.State, "realizedPnl": view.RealizedPnL})
}

// --- dumpCmd ---

type dumpCmd struct{}

func (*dumpCmd) Name() string             { return "dump" }
func (*dumpCmd) Synopsis() string         { return "prints the latest ledger snapshot" }
func (*dumpCmd) Usage() string            { return "dump\n\nPrints the newest stored snapshot as JSON.\n" }
func (*dumpCmd) SetFlags(_ *flag.FlagSet) {}

func (*dumpCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	b, status := initQuiet()
	if b == nil {
		return status
	}
	defer b.Close()

	if b.Storage == nil {
		fmt.Fprintln(os.Stderr, "Error: storage is disabled in the configuration.")
		return subcommands.ExitUsageError
	}

	snap, err := b.Storage.LatestSnapshot(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading snapshot: %v\n", err)
		return subcommands.ExitFailure
	}
	if snap == nil {
		fmt.Fprintln(os.Stderr, "No snapshot stored yet.")
		return subcommands.ExitFailure
	}
	return printJSON(snap)
}

func initQuiet() (*app.Bootstrap, subcommands.ExitStatus) {
	b := app.NewBootstrap(*configPath)
	b.Quiet = true
	if err := b.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return nil, subcommands.ExitFailure
	}
	return b, subcommands.ExitSuccess
}

func printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding output: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
