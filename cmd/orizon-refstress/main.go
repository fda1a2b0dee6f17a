// Command orizon-refstress hammers shared references from many goroutines and
// verifies that every shared object is finalized exactly once and that the
// allocator ends with nothing live.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/orizon-lang/sharedref/internal/cli"
	"github.com/orizon-lang/sharedref/internal/logger"
)

const toolName = "orizon-refstress"

func main() {
	var (
		goroutines  int
		iterations  int
		churn       int
		allocName   string
		configPath  string
		fused       bool
		jsonOutput  bool
		verbose     bool
		showVersion bool
	)

	flag.IntVar(&goroutines, "goroutines", runtime.GOMAXPROCS(0)*4, "handles shared per round, one goroutine each")
	flag.IntVar(&iterations, "iterations", 100, "number of rounds")
	flag.IntVar(&churn, "churn", 64, "clone/derive cycles per goroutine and round")
	flag.StringVar(&allocName, "allocator", "", "allocator: system, pool, arena or counting (overrides the config file)")
	flag.StringVar(&configPath, "config", "", "path to a JSON configuration file")
	flag.BoolVar(&fused, "fused", true, "construct objects with a fused allocation instead of adopting them")
	flag.BoolVar(&jsonOutput, "json", false, "print the report as JSON")
	flag.BoolVar(&verbose, "verbose", false, "log progress to stderr")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		cli.PrintVersion(os.Stdout, toolName, jsonOutput)
		return
	}

	config, err := cli.LoadConfig(configPath)
	cli.HandleError(err)
	if verbose {
		config.Verbose = true
	}
	if allocName != "" {
		config.Allocator = allocName
	}
	config.SetupLogging()

	if goroutines <= 0 || iterations <= 0 || churn < 0 {
		cli.ExitWithCode(2, "goroutines and iterations must be positive, churn must not be negative")
	}

	allocs, err := newAllocators(config.Allocator, config.Memory)
	cli.HandleError(err)
	defer func() {
		if err := allocs.close(); err != nil {
			logger.Warn("closing allocator", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger.Info("starting", "allocator", config.Allocator, "goroutines", goroutines, "iterations", iterations, "fused", fused)
	rep, err := run(ctx, options{
		Goroutines: goroutines,
		Iterations: iterations,
		Fused:      fused,
		Churn:      churn,
	}, allocs)
	cli.HandleError(err)
	rep.Allocator = config.Allocator

	cli.HandleError(writeReport(os.Stdout, rep, jsonOutput))
	if rep.Live != 0 || rep.Scratch != 0 {
		logger.Error("allocations still live after all handles were released", "live", rep.Live, "scratch", rep.Scratch)
		stop()
		cli.ExitWithCode(3, "")
	}
}

func writeReport(w io.Writer, rep *report, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	_, err := fmt.Fprintf(w,
		"allocator:   %s\nrounds:      %d x %d goroutines (fused=%t)\nfinalized:   %d\nderived:     %d\nhits:        %d\nduration:    %dms (%.0f ops/s)\nlive:        %d (scratch %d)\nallocated:   %d bytes in %d allocations\n",
		rep.Allocator, rep.Iterations, rep.Goroutines, rep.Fused,
		rep.Finalized, rep.Derived, rep.Hits,
		rep.DurationMs, rep.OpsPerSec,
		rep.Live, rep.Scratch,
		rep.Stats.TotalAllocated, rep.Stats.AllocationCount)
	return err
}
