// Command gpu-index computes the T4 GPU rental price index and publishes it
// to a SQL store and an on-chain oracle.
//
// Usage:
//
//	gpu-index calculate
//	gpu-index publish [--from-report t4_weighted_index.json]
//	gpu-index push [--price 0.45 | --csv t4_gpu_index.csv | --read-only]
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/StrathCole/gpu-index/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newApp().RunContext(ctx, os.Args)
	stop()

	code := exitCode(err)
	if err != nil && code != ExitOK {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

func newApp() *cli.App {
	st := &appState{}

	return &cli.App{
		Name:    "gpu-index",
		Usage:   "T4 GPU rental price index pipeline",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (defaults and environment only when empty)",
				EnvVars: []string{"GPU_INDEX_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Override the configured log level (trace, debug, info, warn, error)",
				EnvVars: []string{"GPU_INDEX_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "Override the directory holding observation files and outputs",
				EnvVars: []string{"GPU_INDEX_DATA_DIR"},
			},
		},
		Commands: []*cli.Command{
			calculateCommand(st),
			publishCommand(st),
			pushCommand(st),
			versionCommand(),
		},
		After: st.pushMetrics,
		// exit codes are mapped in main
		ExitErrHandler: func(*cli.Context, error) {},
	}
}
