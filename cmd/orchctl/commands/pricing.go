package commands

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
)

// NewPricingCommand creates the pricing inspection command
func NewPricingCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect pricing and project costs",
		Long: `Look up effective pricing rows and price hypothetical token usage.
Calculations run against the embedded pricing table, with database
overrides applied when --db-url is configured.`,
	}

	cmd.AddCommand(newPricingGetCommand(ctx))
	cmd.AddCommand(newPricingCalcCommand(ctx))
	cmd.AddCommand(newPricingCompareCommand(ctx))

	return cmd
}

func newPricingGetCommand(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "get <model-id>",
		Short: "Show a model's effective pricing row",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modelID := args[0]

			if IsAPIAccess() {
				var p pricing.Pricing
				if err := apiGet(ctx, "/v1/pricing/"+modelID, &p); err != nil {
					return err
				}
				printPricing(modelID, p)
				return nil
			}

			pm, err := loadPricingManager(ctx)
			if err != nil {
				return err
			}
			p := pm.GetPricing(modelID)
			if p == nil {
				return fmt.Errorf("no pricing for model %q", modelID)
			}
			printPricing(modelID, *p)
			return nil
		},
	}
}

func newPricingCalcCommand(ctx context.Context) *cobra.Command {
	var input, output, cached, reasoning int

	cmd := &cobra.Command{
		Use:   "calc <model-id>",
		Short: "Price a hypothetical token usage against one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := buildUsage(input, output, cached, reasoning)
			if err != nil {
				return err
			}

			pm, err := loadPricingManager(ctx)
			if err != nil {
				return err
			}
			breakdown, err := pm.Calculate(args[0], usage)
			if err != nil {
				return err
			}
			printBreakdown(breakdown)
			return nil
		},
	}

	addTokenFlags(cmd, &input, &output, &cached, &reasoning)
	return cmd
}

func newPricingCompareCommand(ctx context.Context) *cobra.Command {
	var input, output, cached, reasoning int

	cmd := &cobra.Command{
		Use:   "compare <model-id>...",
		Short: "Price the same usage across several models",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := buildUsage(input, output, cached, reasoning)
			if err != nil {
				return err
			}

			pm, err := loadPricingManager(ctx)
			if err != nil {
				return err
			}
			costs, err := pm.Compare(args, usage)
			if err != nil {
				return err
			}

			cheapest := ""
			for id, breakdown := range costs {
				if cheapest == "" || breakdown.TotalCost < costs[cheapest].TotalCost {
					cheapest = id
				}
			}

			if outputJSON {
				OutputJSON(map[string]interface{}{
					"costs":    costs,
					"cheapest": cheapest,
				})
				return nil
			}

			ids := make([]string, 0, len(costs))
			for id := range costs {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool {
				return costs[ids[i]].TotalCost < costs[ids[j]].TotalCost
			})

			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				marker := ""
				if id == cheapest {
					marker = "cheapest"
				}
				rows = append(rows, []string{
					id,
					fmt.Sprintf("$%.6f", costs[id].TotalCost),
					marker,
				})
			}
			OutputTable([]string{"MODEL", "TOTAL COST", ""}, rows)
			return nil
		},
	}

	addTokenFlags(cmd, &input, &output, &cached, &reasoning)
	return cmd
}

func addTokenFlags(cmd *cobra.Command, input, output, cached, reasoning *int) {
	cmd.Flags().IntVar(input, "input", 0, "Input tokens")
	cmd.Flags().IntVar(output, "output", 0, "Output tokens")
	cmd.Flags().IntVar(cached, "cached", 0, "Cached input tokens")
	cmd.Flags().IntVar(reasoning, "reasoning", 0, "Reasoning tokens")
}

func buildUsage(input, output, cached, reasoning int) (domain.TokenUsage, error) {
	if input < 0 || output < 0 || cached < 0 || reasoning < 0 {
		return domain.TokenUsage{}, fmt.Errorf("token counts must be non-negative")
	}
	u := domain.NewTokenUsage(input, output)
	u.Cached = cached
	u.Reasoning = reasoning
	return u, nil
}

// loadPricingManager builds the same pricing view the server uses: embedded
// defaults, then database overrides when a connection is configured.
func loadPricingManager(ctx context.Context) (*pricing.Manager, error) {
	pm, err := pricing.NewManager(zap.NewNop())
	if err != nil {
		return nil, err
	}
	if IsDirectDBAccess() {
		pm.SetRepository(pricing.NewGormRepository(db))
		if err := pm.LoadDatabaseOverrides(ctx); err != nil {
			return nil, fmt.Errorf("failed to load pricing overrides: %w", err)
		}
	}
	return pm, nil
}

func printPricing(modelID string, p pricing.Pricing) {
	if outputJSON {
		OutputJSON(p)
		return
	}

	fmt.Printf("Pricing for %s (source: %s)\n\n", modelID, p.Source)
	fmt.Printf("  Input:     $%.6f / 1K tokens\n", p.InputPer1K)
	fmt.Printf("  Output:    $%.6f / 1K tokens\n", p.OutputPer1K)
	if p.CachedPer1K > 0 {
		fmt.Printf("  Cached:    $%.6f / 1K tokens\n", p.CachedPer1K)
	}
	if p.ReasoningPer1K > 0 {
		fmt.Printf("  Reasoning: $%.6f / 1K tokens\n", p.ReasoningPer1K)
	}
	if p.MinimumCharge > 0 {
		fmt.Printf("  Minimum:   $%.6f / request\n", p.MinimumCharge)
	}
	if p.FreeTier != nil {
		fmt.Printf("  Free Tier: %d requests, %d tokens per month\n",
			p.FreeTier.RequestsPerMonth, p.FreeTier.TokensPerMonth)
	}
}

func printBreakdown(b domain.CostBreakdown) {
	if outputJSON {
		OutputJSON(b)
		return
	}

	fmt.Printf("  Input Cost:     $%.6f\n", b.InputCost)
	fmt.Printf("  Output Cost:    $%.6f\n", b.OutputCost)
	if b.CachedCost > 0 {
		fmt.Printf("  Cached Cost:    $%.6f\n", b.CachedCost)
	}
	if b.ReasoningCost > 0 {
		fmt.Printf("  Reasoning Cost: $%.6f\n", b.ReasoningCost)
	}
	fmt.Printf("  Total:          $%.6f %s\n", b.TotalCost, b.Currency)
}
