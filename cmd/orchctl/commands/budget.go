package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/config"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
)

// NewBudgetCommand creates the budget management command
func NewBudgetCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Inspect and update the monthly budget contract",
	}

	cmd.AddCommand(newBudgetStatusCommand(ctx))
	cmd.AddCommand(newBudgetSetCommand(ctx))

	return cmd
}

func newBudgetStatusCommand(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show current period spend and utilization",
		RunE: func(cmd *cobra.Command, args []string) error {
			if IsDirectDBAccess() {
				return showBudgetStatusDB(ctx)
			}
			if IsAPIAccess() {
				return showBudgetStatusAPI(ctx)
			}
			return errNoAccess
		},
	}
}

func newBudgetSetCommand(ctx context.Context) *cobra.Command {
	var (
		monthlyBudget     float64
		warningThreshold  float64
		criticalThreshold float64
		resetDay          int
		timezone          string
		autoPause         bool
		maxRequestCost    float64
		maxSessionCost    float64
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update the budget contract",
		Long: `Update one or more budget settings. Only the flags you pass change;
everything else keeps its current value.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			apply := func(cfg *config.BudgetConfig) {
				if cmd.Flags().Changed("monthly-budget") {
					cfg.MonthlyBudget = monthlyBudget
				}
				if cmd.Flags().Changed("warning-threshold") {
					cfg.WarningThreshold = warningThreshold
				}
				if cmd.Flags().Changed("critical-threshold") {
					cfg.CriticalThreshold = criticalThreshold
				}
				if cmd.Flags().Changed("reset-day") {
					cfg.BudgetResetDay = resetDay
				}
				if cmd.Flags().Changed("timezone") {
					cfg.Timezone = timezone
				}
				if cmd.Flags().Changed("auto-pause") {
					cfg.AutoPauseAtLimit = autoPause
				}
				if cmd.Flags().Changed("max-request-cost") {
					cfg.MaxRequestCost = maxRequestCost
				}
				if cmd.Flags().Changed("max-session-cost") {
					cfg.MaxSessionCost = maxSessionCost
				}
			}

			if IsAPIAccess() {
				return setBudgetAPI(ctx, apply)
			}
			if IsDirectDBAccess() {
				return setBudgetDB(ctx, apply)
			}
			return errNoAccess
		},
	}

	cmd.Flags().Float64Var(&monthlyBudget, "monthly-budget", 0, "Monthly budget in USD")
	cmd.Flags().Float64Var(&warningThreshold, "warning-threshold", 0, "Warning threshold (0-1)")
	cmd.Flags().Float64Var(&criticalThreshold, "critical-threshold", 0, "Critical threshold (0-1)")
	cmd.Flags().IntVar(&resetDay, "reset-day", 0, "Day of month the period resets (1-28)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA timezone for period boundaries")
	cmd.Flags().BoolVar(&autoPause, "auto-pause", false, "Pause paid requests when the budget is exhausted")
	cmd.Flags().Float64Var(&maxRequestCost, "max-request-cost", 0, "Per-request cost cap in USD (0 disables)")
	cmd.Flags().Float64Var(&maxSessionCost, "max-session-cost", 0, "Per-session cost cap in USD (0 disables)")

	return cmd
}

// Database implementations

func loadSettingsRow(ctx context.Context) (models.BudgetSettings, error) {
	var row models.BudgetSettings
	err := db.WithContext(ctx).Where("name = ?", "default").First(&row).Error
	if err != nil {
		return row, fmt.Errorf("failed to load budget settings (has the server booted once?): %w", err)
	}
	return row, nil
}

func settingsToConfig(row models.BudgetSettings) config.BudgetConfig {
	cfg := config.BudgetConfig{
		MonthlyBudget:     row.MonthlyBudget,
		WarningThreshold:  row.WarningThreshold,
		CriticalThreshold: row.CriticalThreshold,
		AutoPauseAtLimit:  row.AutoPauseAtLimit,
		MaxRequestCost:    row.MaxRequestCost,
		MaxSessionCost:    row.MaxSessionCost,
		BudgetResetDay:    row.BudgetResetDay,
		Timezone:          row.Timezone,
	}
	if len(row.TierAllocation) > 0 {
		_ = json.Unmarshal(row.TierAllocation, &cfg.TierAllocation)
	}
	return cfg
}

// showBudgetStatusDB rebuilds a throwaway ledger from the persisted totals,
// so the numbers match what the server reports for the same rows.
func showBudgetStatusDB(ctx context.Context) error {
	row, err := loadSettingsRow(ctx)
	if err != nil {
		return err
	}
	cfg := settingsToConfig(row)

	loc := time.UTC
	if l, err := time.LoadLocation(cfg.Timezone); err == nil {
		loc = l
	}
	period := budget.PeriodKey(time.Now(), cfg.BudgetResetDay, loc)

	spent, requests, perModel, perTier, freeTier, err := budget.NewGormReconciler(db).CurrentPeriodTotals(ctx, period)
	if err != nil {
		return err
	}

	ledger := budget.NewLedger(cfg, zap.NewNop())
	ledger.Hydrate(spent, requests, perModel, perTier, freeTier)
	printBudgetStatus(ledger.Snapshot())
	return nil
}

func setBudgetDB(ctx context.Context, apply func(*config.BudgetConfig)) error {
	row, err := loadSettingsRow(ctx)
	if err != nil {
		return err
	}
	cfg := settingsToConfig(row)
	apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := budget.NewSettingsStore(db).Save(ctx, cfg); err != nil {
		return err
	}

	if outputJSON {
		OutputJSON(cfg)
	} else {
		fmt.Println("Budget settings saved. Running instances pick them up on restart;")
		fmt.Println("use --api-url to apply a change to a live instance immediately.")
		printBudgetConfig(cfg)
	}
	return nil
}

// API implementations

func showBudgetStatusAPI(ctx context.Context) error {
	var st budget.Status
	if err := apiGet(ctx, "/v1/budget", &st); err != nil {
		return err
	}
	printBudgetStatus(st)
	return nil
}

func setBudgetAPI(ctx context.Context, apply func(*config.BudgetConfig)) error {
	var cfg config.BudgetConfig
	if err := apiGet(ctx, "/v1/budget/config", &cfg); err != nil {
		return err
	}
	apply(&cfg)

	var updated config.BudgetConfig
	if err := apiDo(ctx, http.MethodPut, "/v1/budget/config", cfg, &updated); err != nil {
		return err
	}

	if outputJSON {
		OutputJSON(updated)
	} else {
		fmt.Println("Budget settings updated.")
		printBudgetConfig(updated)
	}
	return nil
}

// Output

func printBudgetStatus(st budget.Status) {
	if outputJSON {
		OutputJSON(st)
		return
	}

	fmt.Printf("Budget Status (%s)\n", st.Period)
	fmt.Printf("==================\n\n")
	fmt.Printf("  Monthly Budget: $%.2f\n", st.MonthlyBudget)
	fmt.Printf("  Spent:          $%.2f (%.1f%%)\n", st.Spent, st.Utilization*100)
	fmt.Printf("  Remaining:      $%.2f\n", st.Remaining)
	fmt.Printf("  Requests:       %d\n", st.Requests)
	fmt.Printf("  Paused:         %v\n\n", st.Paused)

	if len(st.PerModel) > 0 {
		ids := make([]string, 0, len(st.PerModel))
		for id := range st.PerModel {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			rows = append(rows, []string{id, fmt.Sprintf("$%.4f", st.PerModel[id])})
		}
		fmt.Println("Per Model:")
		OutputTable([]string{"MODEL", "SPENT"}, rows)
		fmt.Println()
	}

	if len(st.PerTier) > 0 {
		tiers := make([]int, 0, len(st.PerTier))
		for tier := range st.PerTier {
			tiers = append(tiers, tier)
		}
		sort.Ints(tiers)

		rows := make([][]string, 0, len(tiers))
		for _, tier := range tiers {
			ts := st.PerTier[tier]
			budgetCell := "-"
			utilCell := "-"
			if ts.Budget > 0 {
				budgetCell = fmt.Sprintf("$%.2f", ts.Budget)
				utilCell = fmt.Sprintf("%.1f%%", ts.Utilization*100)
			}
			rows = append(rows, []string{
				fmt.Sprintf("%d", tier),
				fmt.Sprintf("$%.4f", ts.Spent),
				budgetCell,
				utilCell,
			})
		}
		fmt.Println("Per Tier:")
		OutputTable([]string{"TIER", "SPENT", "BUDGET", "UTILIZATION"}, rows)
		fmt.Println()
	}

	if len(st.FreeTier) > 0 {
		ids := make([]string, 0, len(st.FreeTier))
		for id := range st.FreeTier {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		rows := make([][]string, 0, len(ids))
		for _, id := range ids {
			state := st.FreeTier[id]
			rows = append(rows, []string{
				id,
				fmt.Sprintf("%d", state.RequestsUsed),
				fmt.Sprintf("%d", state.TokensUsed),
			})
		}
		fmt.Println("Free Tier:")
		OutputTable([]string{"MODEL", "REQUESTS USED", "TOKENS USED"}, rows)
	}
}

func printBudgetConfig(cfg config.BudgetConfig) {
	fmt.Printf("\n  Monthly Budget:     $%.2f\n", cfg.MonthlyBudget)
	fmt.Printf("  Warning Threshold:  %.0f%%\n", cfg.WarningThreshold*100)
	fmt.Printf("  Critical Threshold: %.0f%%\n", cfg.CriticalThreshold*100)
	fmt.Printf("  Auto Pause:         %v\n", cfg.AutoPauseAtLimit)
	fmt.Printf("  Max Request Cost:   $%.2f\n", cfg.MaxRequestCost)
	fmt.Printf("  Max Session Cost:   $%.2f\n", cfg.MaxSessionCost)
	fmt.Printf("  Reset Day:          %d\n", cfg.BudgetResetDay)
	fmt.Printf("  Timezone:           %s\n", cfg.Timezone)
}
