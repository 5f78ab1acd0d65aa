package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"SignalDesk/internal/di"
	"SignalDesk/pkg/config"
	"SignalDesk/pkg/util"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

// runAction computes signals once and saves them. The summary goes to
// stdout only on success; on failure the error is the last stderr line.
func runAction(ctx context.Context, cmd *cli.Command) error {
	_ = godotenv.Load()

	cfg, err := config.LoadWithEnv(cmd.String("config"))
	if err != nil {
		return err
	}
	// stdout is reserved for the result
	cfg.Log.Output = "stderr"

	svc, cleanup, err := di.InitializeGenerator(cfg)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer cleanup()

	// unset means every supported symbol
	var symbols []string
	if v := cmd.String("symbols"); v != "" {
		symbols = util.SplitList(v)
	}
	res, err := svc.Run(ctx, symbols)
	if err != nil {
		return err
	}

	summary := make([]map[string]interface{}, 0, len(res.Signals))
	for _, s := range res.Signals {
		summary = append(summary, map[string]interface{}{
			"symbol": s.Symbol,
			"stage":  s.Stage,
			"score":  s.Score,
		})
	}
	return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
		"generated_at": res.GeneratedAt,
		"signals":      summary,
	})
}

func main() {
	cmd := &cli.Command{
		Name:  "generate",
		Usage: "Generate trading signals out of process",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Compute signals for the supported symbols and save them",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to the YAML config",
						Value:   "config/config.yaml",
					},
					&cli.StringFlag{
						Name:    "symbols",
						Aliases: []string{"s"},
						Usage:   "Comma separated symbols, e.g. `BTCUSDT,ETHUSDT` (default: all supported)",
					},
				},
				Action: runAction,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
