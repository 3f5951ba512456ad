package matching

import (
	"math"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// Fuzzy scoring weights and bonuses.
const (
	weightRatio     = 0.2
	weightPartial   = 0.2
	weightTokenSort = 0.3
	weightTokenSet  = 0.3

	brandMatchBonus    = 0.20
	brandMismatchCost  = -0.15
	keywordBonusWeight = 0.10
	sizeBonus          = 0.10
)

// FuzzyBreakdown records how a fuzzy score was built.
type FuzzyBreakdown struct {
	Ratio        float64
	Partial      float64
	TokenSort    float64
	TokenSet     float64
	Base         float64
	BrandBonus   float64
	KeywordBonus float64
	SizeBonus    float64
	Score        float64
}

// Details renders the breakdown for MatchResult.Details.
func (b FuzzyBreakdown) Details() map[string]any {
	return map[string]any{
		"ratio":         round4(b.Ratio),
		"partial":       round4(b.Partial),
		"token_sort":    round4(b.TokenSort),
		"token_set":     round4(b.TokenSet),
		"base_score":    round4(b.Base),
		"brand_bonus":   b.BrandBonus,
		"keyword_bonus": round4(b.KeywordBonus),
		"size_bonus":    b.SizeBonus,
	}
}

// ScoreFuzzy blends four string similarities with brand, keyword and size
// agreement, clamped to [0,1].
func ScoreFuzzy(name string, invoice ParsedName, entry model.CatalogEntry, parser *Parser, sizeTolerance float64) FuzzyBreakdown {
	var b FuzzyBreakdown
	b.Ratio = Ratio(name, entry.Name)
	b.Partial = PartialRatio(name, entry.Name)
	b.TokenSort = TokenSortRatio(name, entry.Name)
	b.TokenSet = TokenSetRatio(name, entry.Name)
	b.Base = b.Ratio*weightRatio + b.Partial*weightPartial + b.TokenSort*weightTokenSort + b.TokenSet*weightTokenSet

	catalog := parser.Parse(entry.Name)
	catalogBrand := catalog.Brand
	if catalogBrand == "" {
		catalogBrand = parser.Canonical(entry.Brand)
	}
	if invoice.Brand != "" && catalogBrand != "" {
		if invoice.Brand == catalogBrand {
			b.BrandBonus = brandMatchBonus
		} else {
			b.BrandBonus = brandMismatchCost
		}
	}

	if len(invoice.Keywords) > 0 && len(catalog.Keywords) > 0 {
		set := make(map[string]bool, len(catalog.Keywords))
		for _, kw := range catalog.Keywords {
			set[kw] = true
		}
		shared := 0
		seen := make(map[string]bool, len(invoice.Keywords))
		for _, kw := range invoice.Keywords {
			if set[kw] && !seen[kw] {
				shared++
			}
			seen[kw] = true
		}
		larger := math.Max(float64(len(seen)), float64(len(set)))
		b.KeywordBonus = float64(shared) / larger * keywordBonusWeight
	}

	catalogSize := catalog.Size
	if catalogSize.Dimension == DimensionNone {
		if s, ok := parseSize(entry.Size); ok {
			catalogSize = s
		}
	}
	if invoice.Size.Compatible(catalogSize, sizeTolerance) {
		b.SizeBonus = sizeBonus
	}

	b.Score = math.Max(0, math.Min(1, b.Base+b.BrandBonus+b.KeywordBonus+b.SizeBonus))
	return b
}
