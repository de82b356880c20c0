package catalog

import (
	"strconv"

	"github.com/trogers1052/twstock-service/internal/models"
)

// knownOTC lists codes treated as OTC regardless of their range
var knownOTC = map[string]bool{
	"3443": true, "4966": true, "6488": true, "3034": true, "3702": true, "4904": true, "5269": true, "6415": true,
	"1565": true, "1569": true, "1580": true, "2596": true, "2633": true, "2719": true, "2724": true, "2729": true,
	"3131": true, "3149": true, "3163": true, "3167": true, "3169": true, "3171": true, "3176": true, "3178": true,
	"4102": true, "4106": true, "4108": true, "4116": true, "4119": true, "4126": true, "4128": true, "4129": true,
	"5203": true, "5222": true, "5234": true, "5243": true, "5245": true, "5251": true, "5263": true, "5264": true,
	"6104": true, "6116": true, "6120": true, "6121": true, "6122": true, "6126": true, "6128": true, "6129": true,
	"7556": true, "7557": true, "7561": true, "7566": true, "7567": true, "7568": true, "7569": true, "7570": true,
	"8024": true, "8027": true, "8028": true, "8029": true, "8032": true, "8033": true, "8034": true, "8035": true,
	"9188": true, "9802": true, "9910": true, "9911": true, "9912": true, "9914": true, "9917": true, "9918": true,
}

// otcRanges are inclusive code ranges where OTC listings dominate
var otcRanges = [][2]int{
	{1500, 1999},
	{2500, 2999},
	{3000, 3999},
	{4000, 4999},
	{5200, 5999},
	{6100, 6999},
	{7500, 7999},
	{8000, 8999},
	{9100, 9999},
}

// ClassifyByCodeRange guesses the market of a bare code from a hand-maintained
// table. It is imprecise: plenty of listed companies sit inside the OTC ranges
// (3008 is listed, for one). Use it only when neither a suffix nor the catalog
// resolves the symbol. Non-numeric codes are treated as listed.
func ClassifyByCodeRange(code string) models.Market {
	if knownOTC[code] {
		return models.MarketOTC
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return models.MarketListed
	}
	for _, r := range otcRanges {
		if n >= r[0] && n <= r[1] {
			return models.MarketOTC
		}
	}
	return models.MarketListed
}
