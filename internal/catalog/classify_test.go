package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trogers1052/twstock-service/internal/models"
)

// The code-range table is a known-imprecise heuristic. These cases pin its
// current boundaries, not the true market of each company.
func TestClassifyByCodeRange(t *testing.T) {
	tests := []struct {
		code string
		want models.Market
	}{
		{"2330", models.MarketListed},
		{"1101", models.MarketListed},
		{"1499", models.MarketListed},
		{"1500", models.MarketOTC},
		{"1999", models.MarketOTC},
		{"2499", models.MarketListed},
		{"2500", models.MarketOTC},
		{"5199", models.MarketListed},
		{"5200", models.MarketOTC},
		{"6099", models.MarketListed},
		{"6100", models.MarketOTC},
		{"7499", models.MarketListed},
		{"7500", models.MarketOTC},
		{"9099", models.MarketListed},
		{"9100", models.MarketOTC},
		{"9999", models.MarketOTC},
		{"0050", models.MarketListed},
		{"00878", models.MarketListed},
		{"3443", models.MarketOTC},
		{"ABCD", models.MarketListed},
		// misclassified by the heuristic: listed in reality
		{"3008", models.MarketOTC},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyByCodeRange(tt.code))
		})
	}
}
