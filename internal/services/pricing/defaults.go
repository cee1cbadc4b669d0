package pricing

import (
	"encoding/json"
	"fmt"
	"time"

	_ "embed"
)

//go:embed default_pricing.json
var defaultPricingJSON []byte

func loadDefaultTable() (map[string]*Pricing, error) {
	var table map[string]*Pricing
	if err := json.Unmarshal(defaultPricingJSON, &table); err != nil {
		return nil, fmt.Errorf("failed to parse default pricing table: %w", err)
	}
	now := time.Now()
	for _, p := range table {
		p.Source = SourceDefault
		p.LastUpdated = now
	}
	return table, nil
}
