// File: cmd/plan.go
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeffcmilberger/openclaw-browser-guard/api/schemas"
	cfgpkg "github.com/jeffcmilberger/openclaw-browser-guard/internal/config"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/intent"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/llmclient"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/observability"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/plan"
	"github.com/jeffcmilberger/openclaw-browser-guard/internal/policy"
)

var planExtraDomains []string

// planCmd derives an intent from the request, generates a plan and prints
// the human-readable walk a confirmation UI would show. No browser is
// touched.
var planCmd = &cobra.Command{
	Use:   "plan <request...>",
	Short: "Derive an intent and print the conditional execution plan",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := observability.GetLogger()
		request := strings.Join(args, " ")

		parser := intent.NewParser(logger)
		in := parser.Parse(request, intent.Options{ExtraDomains: planExtraDomains})
		if err := intent.MustValidate(in); err != nil {
			return err
		}

		engine := policy.New(in, logger)
		if d := engine.AllowsIntent(in); !d.Allowed {
			return fmt.Errorf("intent rejected: %s", d.Reason)
		}

		var provider schemas.LLMProvider
		if cfg.Planner.Strategy == cfgpkg.StrategyLLM {
			p, err := llmclient.NewProvider(cmd.Context(), cfg.Planner.LLM, logger)
			if err != nil {
				return err
			}
			provider = llmclient.WithLogging(p, logger)
		}

		gen := plan.NewGenerator(provider, plan.GeneratorOptions{
			MaxRetries:         cfg.Planner.MaxRetries,
			FallbackToTemplate: cfg.Planner.FallbackToTemplate,
		}, logger)

		dag, err := gen.BuildPlan(cmd.Context(), in)
		if err != nil {
			return err
		}

		logger.Info("plan generated",
			zap.String("task_type", string(in.TaskType)),
			zap.Int("nodes", len(dag.Nodes)),
			zap.Int("edges", len(dag.Edges)))
		fmt.Println(plan.Describe(dag))
		return nil
	},
}

func init() {
	planCmd.Flags().StringSliceVar(&planExtraDomains, "domain", nil, "additional allowed domains")
	rootCmd.AddCommand(planCmd)
}
