package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gorm.io/gorm"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/core/domain"
)

var (
	db         *gorm.DB
	apiURL     string
	outputJSON bool
	verbose    bool
)

// SetDB sets the database connection for direct access
func SetDB(database *gorm.DB) {
	db = database
}

// SetAPIURL sets the API base URL for remote access
func SetAPIURL(url string) {
	apiURL = strings.TrimRight(url, "/")
}

// SetOutputJSON sets the output format preference
func SetOutputJSON(json bool) {
	outputJSON = json
}

// SetVerbose sets verbose output
func SetVerbose(v bool) {
	verbose = v
}

// IsDirectDBAccess returns true if we have database access
func IsDirectDBAccess() bool {
	return db != nil
}

// IsAPIAccess returns true if we have API access configured
func IsAPIAccess() bool {
	return apiURL != ""
}

var errNoAccess = fmt.Errorf("no database or API access configured (use --db-url or --api-url)")

// HTTPClient is a configured HTTP client for API calls
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// apiDo sends one request and decodes the response into out. Failed calls
// carry the server's error envelope, so the message names the taxonomy code.
func apiDo(ctx context.Context, method, endpoint string, body, out interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL+endpoint, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if verbose {
		fmt.Printf("Making %s request to: %s\n", method, apiURL+endpoint)
	}

	resp, err := HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope domain.Response
		if json.Unmarshal(data, &envelope) == nil && envelope.Error != nil {
			return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func apiGet(ctx context.Context, endpoint string, out interface{}) error {
	return apiDo(ctx, http.MethodGet, endpoint, nil, out)
}

// OutputJSON outputs data in JSON format
func OutputJSON(data interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
	}
}

// OutputTable outputs data in table format
func OutputTable(headers []string, rows [][]string) {
	if outputJSON {
		var jsonRows []map[string]string
		for _, row := range rows {
			jsonRow := make(map[string]string)
			for i, cell := range row {
				if i < len(headers) {
					jsonRow[headers[i]] = cell
				}
			}
			jsonRows = append(jsonRows, jsonRow)
		}
		OutputJSON(jsonRows)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	for i, header := range headers {
		if i > 0 {
			_, _ = fmt.Fprint(w, "\t")
		}
		_, _ = fmt.Fprint(w, header)
	}
	_, _ = fmt.Fprintln(w)

	for i := range headers {
		if i > 0 {
			_, _ = fmt.Fprint(w, "\t")
		}
		_, _ = fmt.Fprint(w, "---")
	}
	_, _ = fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				_, _ = fmt.Fprint(w, "\t")
			}
			_, _ = fmt.Fprint(w, cell)
		}
		_, _ = fmt.Fprintln(w)
	}

	_ = w.Flush()
}
