package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/pricing"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/registry"
)

// NewModelsCommand creates the model catalog command
func NewModelsCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the model catalog",
	}

	cmd.AddCommand(newModelsListCommand(ctx))

	return cmd
}

func newModelsListCommand(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List models tier by tier",
		Long: `List the model catalog. With --api-url the list includes live health,
breaker state, and lifetime stats from the running instance; otherwise it
comes from the built-in catalog and pricing table.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if IsAPIAccess() {
				return listModelsAPI(ctx)
			}
			return listModelsLocal(ctx)
		},
	}
}

func listModelsAPI(ctx context.Context) error {
	var resp struct {
		Models []struct {
			registry.ModelStatus
			Pricing *pricing.Pricing `json:"pricing,omitempty"`
		} `json:"models"`
		Count int `json:"count"`
	}
	if err := apiGet(ctx, "/v1/models", &resp); err != nil {
		return err
	}

	if outputJSON {
		OutputJSON(resp)
		return nil
	}

	rows := make([][]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		health := "healthy"
		if !m.Healthy {
			health = "unhealthy"
		}
		breaker := "closed"
		if m.BreakerOpen {
			breaker = "open"
		}
		price := "-"
		if m.Pricing != nil {
			price = fmt.Sprintf("$%.5f/$%.5f", m.Pricing.InputPer1K, m.Pricing.OutputPer1K)
		}
		rows = append(rows, []string{
			m.Model.ID,
			string(m.Model.Provider),
			fmt.Sprintf("%d", m.Model.Tier),
			health,
			breaker,
			fmt.Sprintf("%d", m.Stats.Requests),
			price,
		})
	}
	OutputTable([]string{"MODEL", "PROVIDER", "TIER", "HEALTH", "BREAKER", "REQUESTS", "IN/OUT PER 1K"}, rows)
	return nil
}

func listModelsLocal(ctx context.Context) error {
	catalog := config.DefaultModels()
	pm, err := loadPricingManager(ctx)
	if err != nil {
		return err
	}

	if outputJSON {
		type entry struct {
			config.ModelConfig
			Pricing *pricing.Pricing `json:"pricing,omitempty"`
		}
		entries := make([]entry, 0, len(catalog))
		for _, m := range catalog {
			entries = append(entries, entry{ModelConfig: m, Pricing: pm.GetPricing(m.ID)})
		}
		OutputJSON(entries)
		return nil
	}

	rows := make([][]string, 0, len(catalog))
	for _, m := range catalog {
		price := "-"
		if p := pm.GetPricing(m.ID); p != nil {
			price = fmt.Sprintf("$%.5f/$%.5f", p.InputPer1K, p.OutputPer1K)
		}
		rows = append(rows, []string{
			m.ID,
			m.Provider,
			fmt.Sprintf("%d", m.Tier),
			strings.Join(m.Capabilities, ","),
			price,
		})
	}
	OutputTable([]string{"MODEL", "PROVIDER", "TIER", "CAPABILITIES", "IN/OUT PER 1K"}, rows)
	return nil
}
