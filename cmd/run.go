// File: cmd/run.go
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/browser"
	cfgpkg "github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/interpreter"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/llmclient"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/observability"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/plan"
)

var (
	runDryRun   bool
	runTraceOut string
)

// runCmd executes one or more guarded sessions. Each argument is an
// independent request; sessions run side by side, each owning its own
// policy/refs/filter triple.
var runCmd = &cobra.Command{
	Use:   "run <request> [request...]",
	Short: "Execute guarded browsing sessions",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()

		var provider schemas.LLMProvider
		if cfg.Planner.Strategy == cfgpkg.StrategyLLM {
			p, err := llmclient.NewProvider(cmd.Context(), cfg.Planner.LLM, logger)
			if err != nil {
				return err
			}
			provider = llmclient.WithLogging(p, logger)
		}

		g, ctx := errgroup.WithContext(cmd.Context())
		results := make([]*schemas.Result, len(args))

		for i, request := range args {
			g.Go(func() error {
				var adapter schemas.BrowserAdapter
				if runDryRun {
					adapter = browser.NewMockAdapter()
				} else {
					chrome, err := browser.NewChromeAdapter(ctx, cfg.Browser, logger)
					if err != nil {
						return err
					}
					defer chrome.Close()
					adapter = chrome
				}

				sess, err := interpreter.NewSession(request, adapter, interpreter.SessionOptions{
					Interpreter: interpreter.Options{
						StrictOutcomes:  cfg.Guard.StrictOutcomes,
						Trace:           cfg.Guard.Trace,
						MaxSteps:        cfg.Guard.MaxSteps,
						SnapshotHistory: cfg.Guard.SnapshotHistory,
					},
					Planner: plan.GeneratorOptions{
						MaxRetries:         cfg.Planner.MaxRetries,
						FallbackToTemplate: cfg.Planner.FallbackToTemplate,
					},
					Provider: provider,
				}, logger)
				if err != nil {
					return err
				}

				res, err := sess.Run(ctx)
				if err != nil {
					return err
				}
				results[i] = res
				logger.Info("session result",
					zap.String("request", request),
					zap.String("status", string(res.Status)),
					zap.String("reason", res.Reason))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for i, res := range results {
			fmt.Printf("[%d] status=%s reason=%q data_keys=%d trace_steps=%d\n",
				i+1, res.Status, res.Reason, len(res.Data), len(res.Trace))
		}
		if runTraceOut != "" {
			payload, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(runTraceOut, payload, 0o644); err != nil {
				return fmt.Errorf("write trace: %w", err)
			}
		}
		return nil
	},
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "use the scripted mock adapter instead of Chrome")
	runCmd.Flags().StringVar(&runTraceOut, "trace-out", "", "write session results as JSON to this file")
	rootCmd.AddCommand(runCmd)
}
