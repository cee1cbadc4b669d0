package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/models"
)

// sessionRow mirrors the API's session view for decoding and printing.
type sessionRow struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	Live               bool              `json:"live"`
	StartedAt          time.Time         `json:"started_at"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	TotalRequests      int64             `json:"total_requests"`
	SuccessfulRequests int64             `json:"successful_requests"`
	FailedRequests     int64             `json:"failed_requests"`
	TotalTokens        int64             `json:"total_tokens"`
	TotalCost          float64           `json:"total_cost"`
	ModelBreakdown     json.RawMessage   `json:"model_breakdown,omitempty"`
	UserMetadata       map[string]string `json:"user_metadata,omitempty"`
}

// NewSessionsCommand creates the usage session command
func NewSessionsCommand(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect usage sessions",
	}

	cmd.AddCommand(newSessionsListCommand(ctx))
	cmd.AddCommand(newSessionsShowCommand(ctx))

	return cmd
}

func newSessionsListCommand(ctx context.Context) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List settled usage sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("limit must be positive, got %d", limit)
			}
			if IsDirectDBAccess() {
				return listSessionsDB(ctx, status, limit)
			}
			if IsAPIAccess() {
				return listSessionsAPI(ctx, status, limit)
			}
			return errNoAccess
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by status (active, completed, aborted)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum rows")

	return cmd
}

func newSessionsShowCommand(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-key>",
		Short: "Show one usage session in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if IsDirectDBAccess() {
				return showSessionDB(ctx, args[0])
			}
			if IsAPIAccess() {
				return showSessionAPI(ctx, args[0])
			}
			return errNoAccess
		},
	}
}

// Database implementations

func listSessionsDB(ctx context.Context, status string, limit int) error {
	q := db.WithContext(ctx).Order("started_at DESC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.UsageSession
	if err := q.Find(&rows).Error; err != nil {
		return err
	}

	views := make([]sessionRow, 0, len(rows))
	for _, row := range rows {
		views = append(views, settledToRow(row))
	}
	printSessionList(views)
	return nil
}

func showSessionDB(ctx context.Context, key string) error {
	var row models.UsageSession
	if err := db.WithContext(ctx).Where("session_key = ?", key).First(&row).Error; err != nil {
		return fmt.Errorf("unknown session %q: %w", key, err)
	}
	printSessionDetail(settledToRow(row))
	return nil
}

func settledToRow(row models.UsageSession) sessionRow {
	view := sessionRow{
		ID:                 row.SessionKey,
		Status:             row.Status,
		StartedAt:          row.StartedAt,
		CompletedAt:        row.CompletedAt,
		TotalRequests:      row.TotalRequests,
		SuccessfulRequests: row.SuccessfulRequests,
		FailedRequests:     row.FailedRequests,
		TotalTokens:        row.TotalTokens,
		TotalCost:          row.TotalCost,
	}
	if len(row.ModelBreakdown) > 0 {
		view.ModelBreakdown = json.RawMessage(row.ModelBreakdown)
	}
	if len(row.UserMetadata) > 0 {
		_ = json.Unmarshal(row.UserMetadata, &view.UserMetadata)
	}
	return view
}

// API implementations

func listSessionsAPI(ctx context.Context, status string, limit int) error {
	endpoint := fmt.Sprintf("/v1/sessions?limit=%d", limit)
	if status != "" {
		endpoint += "&status=" + status
	}

	var resp struct {
		Sessions []sessionRow `json:"sessions"`
		Count    int          `json:"count"`
	}
	if err := apiGet(ctx, endpoint, &resp); err != nil {
		return err
	}
	printSessionList(resp.Sessions)
	return nil
}

func showSessionAPI(ctx context.Context, key string) error {
	var view sessionRow
	if err := apiGet(ctx, "/v1/sessions/"+key, &view); err != nil {
		return err
	}
	printSessionDetail(view)
	return nil
}

// Output

func printSessionList(views []sessionRow) {
	if outputJSON {
		OutputJSON(views)
		return
	}

	rows := make([][]string, 0, len(views))
	for _, v := range views {
		completed := "-"
		if v.CompletedAt != nil {
			completed = v.CompletedAt.Format("2006-01-02 15:04")
		}
		rows = append(rows, []string{
			v.ID,
			v.Status,
			fmt.Sprintf("%d", v.TotalRequests),
			fmt.Sprintf("%d", v.TotalTokens),
			fmt.Sprintf("$%.4f", v.TotalCost),
			v.StartedAt.Format("2006-01-02 15:04"),
			completed,
		})
	}
	OutputTable([]string{"SESSION", "STATUS", "REQUESTS", "TOKENS", "COST", "STARTED", "COMPLETED"}, rows)
}

func printSessionDetail(v sessionRow) {
	if outputJSON {
		OutputJSON(v)
		return
	}

	fmt.Printf("Session %s\n\n", v.ID)
	fmt.Printf("  Status:    %s", v.Status)
	if v.Live {
		fmt.Printf(" (live)")
	}
	fmt.Println()
	fmt.Printf("  Started:   %s\n", v.StartedAt.Format(time.RFC3339))
	if v.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", v.CompletedAt.Format(time.RFC3339))
	}
	fmt.Printf("  Requests:  %d (%d ok, %d failed)\n", v.TotalRequests, v.SuccessfulRequests, v.FailedRequests)
	fmt.Printf("  Tokens:    %d\n", v.TotalTokens)
	fmt.Printf("  Cost:      $%.4f\n", v.TotalCost)

	if len(v.UserMetadata) > 0 {
		fmt.Println("\n  Metadata:")
		for k, val := range v.UserMetadata {
			fmt.Printf("    %s: %s\n", k, val)
		}
	}

	if len(v.ModelBreakdown) > 0 {
		fmt.Println("\n  Model Breakdown:")
		var pretty map[string]interface{}
		if err := json.Unmarshal(v.ModelBreakdown, &pretty); err == nil {
			for model, stats := range pretty {
				data, _ := json.Marshal(stats)
				fmt.Printf("    %s: %s\n", model, data)
			}
		}
	}
}
