package commands

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/services/budget"
)

// NewAlertsCommand creates the alert management command
func NewAlertsCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Inspect and acknowledge budget alerts",
	}

	cmd.AddCommand(newAlertsListCommand(ctx))
	cmd.AddCommand(newAlertsAckCommand(ctx))

	return cmd
}

func newAlertsListCommand(ctx context.Context) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be positive, got %d", limit)
			}

			var alerts []models.Alert
			switch {
			case IsDirectDBAccess():
				var err error
				alerts, err = budget.NewGormAlertStore(db).List(ctx, limit)
				if err != nil {
					return err
				}
			case IsAPIAccess():
				var resp struct {
					Alerts []models.Alert `json:"alerts"`
					Count  int            `json:"count"`
				}
				if err := apiGet(ctx, fmt.Sprintf("/v1/alerts?limit=%d", limit), &resp); err != nil {
					return err
				}
				alerts = resp.Alerts
			default:
				return errNoAccess
			}

			if outputJSON {
				OutputJSON(alerts)
				return nil
			}

			rows := make([][]string, 0, len(alerts))
			for _, a := range alerts {
				acked := "-"
				if a.AcknowledgedBy != nil {
					acked = *a.AcknowledgedBy
				}
				rows = append(rows, []string{
					a.ID.String(),
					a.Kind,
					a.Message,
					a.CreatedAt.Format("2006-01-02 15:04"),
					acked,
				})
			}
			OutputTable([]string{"ID", "KIND", "MESSAGE", "CREATED", "ACKED BY"}, rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")

	return cmd
}

func newAlertsAckCommand(ctx context.Context) *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:   "ack <alert-id>",
		Short: "Acknowledge an alert",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			switch {
			case IsDirectDBAccess():
				if err := budget.NewGormAlertStore(db).Acknowledge(ctx, id, by); err != nil {
					return fmt.Errorf("failed to acknowledge alert %s: %w", id, err)
				}
			case IsAPIAccess():
				body := map[string]string{"acknowledged_by": by}
				if err := apiDo(ctx, http.MethodPost, "/v1/alerts/"+id+"/ack", body, nil); err != nil {
					return err
				}
			default:
				return errNoAccess
			}

			if outputJSON {
				OutputJSON(map[string]string{"id": id, "acknowledged_by": by})
			} else {
				fmt.Printf("Alert %s acknowledged by %s\n", id, by)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&by, "by", "", "Who is acknowledging the alert")
	_ = cmd.MarkFlagRequired("by")

	return cmd
}
