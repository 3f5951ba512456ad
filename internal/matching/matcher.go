// Package matching resolves invoice line items to catalog products.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/service"
	"github.com/Veraticus/the-price-must-flow/internal/vendorrules"
)

// Config holds the acceptance bar of every strategy plus routing.
type Config struct {
	Routing           RoutingThresholds `mapstructure:"routing"`
	LearnedMin        float64           `mapstructure:"learned_min"`
	StructuredMin     float64           `mapstructure:"structured_min"`
	NormalizedMin     float64           `mapstructure:"normalized_min"`
	NormalizedCeiling float64           `mapstructure:"normalized_ceiling"`
	SemanticFloor     float64           `mapstructure:"semantic_floor"`
	SemanticMin       float64           `mapstructure:"semantic_min"`
	FuzzyMin          float64           `mapstructure:"fuzzy_min"`
	SuggestionMin     float64           `mapstructure:"suggestion_min"`
	SizeTolerance     float64           `mapstructure:"size_tolerance"`
	MaxAlternatives   int               `mapstructure:"max_alternatives"`
	MaxSuggestions    int               `mapstructure:"max_suggestions"`
}

// DefaultConfig returns the standard matching configuration.
func DefaultConfig() Config {
	return Config{
		Routing:           DefaultRoutingThresholds(),
		LearnedMin:        0.95,
		StructuredMin:     0.85,
		NormalizedMin:     0.80,
		NormalizedCeiling: 0.85,
		SemanticFloor:     0.70,
		SemanticMin:       0.75,
		FuzzyMin:          0.60,
		SuggestionMin:     0.20,
		SizeTolerance:     0.10,
		MaxAlternatives:   3,
		MaxSuggestions:    5,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if err := c.Routing.Validate(); err != nil {
		return err
	}
	for name, v := range map[string]float64{
		"learned_min":        c.LearnedMin,
		"structured_min":     c.StructuredMin,
		"normalized_min":     c.NormalizedMin,
		"normalized_ceiling": c.NormalizedCeiling,
		"semantic_floor":     c.SemanticFloor,
		"semantic_min":       c.SemanticMin,
		"fuzzy_min":          c.FuzzyMin,
		"suggestion_min":     c.SuggestionMin,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: %s must be in [0,1], got %.2f", common.ErrInvalidConfig, name, v)
		}
	}
	if c.MaxAlternatives < 0 || c.MaxSuggestions < 0 {
		return fmt.Errorf("%w: alternative and suggestion limits must not be negative", common.ErrInvalidConfig)
	}
	return nil
}

// sizeEqualTolerance is how close two sizes must be to count as the same size.
const sizeEqualTolerance = 0.01

// Matcher runs the strategy cascade against a catalog.
type Matcher struct {
	catalog  service.CatalogRepository
	embedder service.EmbeddingProvider
	rules    *vendorrules.Rules
	parsers  map[string]*Parser
	cfg      Config
	mu       sync.Mutex
}

// New creates a matcher. embedder may be nil, which disables semantic search;
// nil rules fall back to the built-in brand dictionary.
func New(catalog service.CatalogRepository, embedder service.EmbeddingProvider, rules *vendorrules.Rules, cfg Config) (*Matcher, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog repository", common.ErrMissingConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if rules == nil {
		var err error
		if rules, err = vendorrules.Default(); err != nil {
			return nil, err
		}
	}
	return &Matcher{
		catalog:  catalog,
		embedder: embedder,
		rules:    rules,
		parsers:  make(map[string]*Parser),
		cfg:      cfg,
	}, nil
}

// Config returns the matcher's configuration.
func (m *Matcher) Config() Config {
	return m.cfg
}

// ParserFor returns the name parser for a vendor.
func (m *Matcher) ParserFor(vendorID string) *Parser {
	key := strings.ToUpper(strings.TrimSpace(vendorID))

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.parsers[key]; ok {
		return p
	}
	p := NewParser(m.rules.ForVendor(key))
	m.parsers[key] = p
	return p
}

type strategyFunc func(ctx context.Context, name string, item model.LineItem, vendorID string, parser *Parser) (*model.MatchResult, error)

// Match resolves one line. A miss is a creation_queue result, not an error;
// errors mean a collaborator failed.
func (m *Matcher) Match(ctx context.Context, item model.LineItem, vendorID string) (model.MatchResult, error) {
	name := strings.TrimSpace(item.ProductName)
	if name == "" {
		return m.noMatch("no product name provided", nil), nil
	}

	parser := m.ParserFor(vendorID)
	strategies := []struct {
		run  strategyFunc
		name model.MatchStrategy
	}{
		{m.learnedMapping, model.StrategyLearnedMapping},
		{m.barcode, model.StrategyBarcode},
		{m.structured, model.StrategyStructured},
		{m.normalized, model.StrategyNormalized},
		{m.semantic, model.StrategySemantic},
		{m.fuzzy, model.StrategyFuzzy},
	}

	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			return model.MatchResult{}, err
		}
		result, err := s.run(ctx, name, item, vendorID, parser)
		if err != nil {
			return model.MatchResult{}, fmt.Errorf("%s: %w", s.name, err)
		}
		if result != nil {
			slog.Debug("Matched product",
				"name", name,
				"strategy", result.Strategy,
				"product_id", result.ProductID,
				"confidence", result.Confidence,
				"routing", result.Routing)
			return *result, nil
		}
	}

	suggestions, err := m.Suggestions(ctx, name, m.cfg.MaxSuggestions)
	if err != nil {
		return model.MatchResult{}, fmt.Errorf("suggestions: %w", err)
	}
	return m.noMatch("no matching product found", suggestions), nil
}

// Suggestions returns up to limit loosely similar products for name.
func (m *Matcher) Suggestions(ctx context.Context, name string, limit int) ([]model.Candidate, error) {
	entries, err := m.catalog.ListForFuzzyMatch(ctx)
	if err != nil {
		return nil, err
	}

	var candidates []model.Candidate
	for _, e := range entries {
		score := TokenSetRatio(name, e.Name)
		if score >= m.cfg.SuggestionMin {
			candidates = append(candidates, model.Candidate{ProductID: e.ID, ProductName: e.Name, Score: round4(score)})
		}
	}
	sortCandidates(candidates)
	if limit >= 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (m *Matcher) noMatch(reason string, suggestions []model.Candidate) model.MatchResult {
	return model.MatchResult{
		Matched:      false,
		Strategy:     model.StrategyNone,
		Routing:      model.RoutingCreationQueue,
		Alternatives: suggestions,
		Details:      map[string]any{"reason": reason},
	}
}

func (m *Matcher) matched(strategy model.MatchStrategy, id, name string, confidence float64, details map[string]any) *model.MatchResult {
	confidence = round4(confidence)
	return &model.MatchResult{
		Matched:     true,
		ProductID:   id,
		ProductName: name,
		Confidence:  confidence,
		Strategy:    strategy,
		Routing:     m.cfg.Routing.Route(confidence),
		Details:     details,
	}
}

func (m *Matcher) learnedMapping(ctx context.Context, name string, _ model.LineItem, vendorID string, _ *Parser) (*model.MatchResult, error) {
	mapping, err := m.catalog.GetLearnedMapping(ctx, name, vendorID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if mapping.Confidence < m.cfg.LearnedMin {
		return nil, nil
	}
	return m.matched(model.StrategyLearnedMapping, mapping.ProductID, mapping.ProductName, mapping.Confidence, map[string]any{
		"mapping_id": mapping.ID,
		"source":     string(mapping.Source),
		"vendor_id":  mapping.VendorID,
	}), nil
}

func (m *Matcher) barcode(ctx context.Context, _ string, item model.LineItem, _ string, _ *Parser) (*model.MatchResult, error) {
	code := strings.TrimSpace(item.Barcode)
	if code == "" {
		return nil, nil
	}
	product, err := m.catalog.GetProductByBarcode(ctx, code)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	result := m.matched(model.StrategyBarcode, product.ID, product.Name, 1.0, map[string]any{"barcode": code})
	result.Routing = model.RoutingAutoApprove
	return result, nil
}

func (m *Matcher) structured(ctx context.Context, name string, _ model.LineItem, _ string, parser *Parser) (*model.MatchResult, error) {
	parsed := parser.Parse(name)
	if parsed.Brand == "" {
		return nil, nil
	}

	products, err := m.catalog.SearchByBrandAndKeywords(ctx, parsed.Brand, parsed.Keywords)
	if err != nil {
		return nil, err
	}

	var best *model.Product
	bestScore := 0.0
	for i := range products {
		if score := StructuredScore(parsed, &products[i], parser); score > bestScore {
			bestScore = score
			best = &products[i]
		}
	}
	if best == nil || bestScore < m.cfg.StructuredMin {
		return nil, nil
	}

	return m.matched(model.StrategyStructured, best.ID, best.Name, bestScore, map[string]any{
		"parsed_brand": parsed.Brand,
		"keywords":     parsed.Keywords,
		"size":         parsed.Size.Raw,
		"pack_count":   parsed.PackCount,
	}), nil
}

// StructuredScore weighs brand (0.4), keyword coverage (0.4) and size (0.2)
// agreement between a parsed invoice name and a product.
func StructuredScore(parsed ParsedName, product *model.Product, parser *Parser) float64 {
	score := 0.0

	productBrand := parser.Canonical(product.Brand)
	if productBrand == "" {
		productBrand = parser.Brand(product.Name)
	}
	if parsed.Brand != "" && productBrand == parsed.Brand {
		score += 0.4
	}

	if len(parsed.Keywords) > 0 {
		upperName := strings.ToUpper(product.Name)
		matched := 0
		for _, kw := range parsed.Keywords {
			if strings.Contains(upperName, kw) {
				matched++
			}
		}
		score += 0.4 * float64(matched) / float64(len(parsed.Keywords))
	}

	if parsed.Size.Dimension != DimensionNone {
		productSize, ok := parseSize(product.Size)
		if !ok {
			productSize, ok = parseSize(product.Name)
		}
		switch {
		case ok && parsed.Size.Compatible(productSize, sizeEqualTolerance):
			score += 0.2
		case !ok && product.Size != "" && strings.Contains(strings.ToUpper(product.Size), parsed.Size.Raw):
			score += 0.2
		}
	}

	return math.Min(1, score)
}

func (m *Matcher) normalized(ctx context.Context, name string, _ model.LineItem, _ string, _ *Parser) (*model.MatchResult, error) {
	base := stripPackCount(name)
	normalized := Normalize(base)
	if normalized == "" {
		return nil, nil
	}

	product, err := m.catalog.GetProductByExactName(ctx, normalized)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	original := strings.Join(strings.Fields(stripPunctuation(base)), " ")
	confidence := m.cfg.NormalizedCeiling * ratio(original, strings.Join(strings.Fields(stripPunctuation(normalized)), " "))
	if round4(confidence) < m.cfg.NormalizedMin {
		return nil, nil
	}

	return m.matched(model.StrategyNormalized, product.ID, product.Name, confidence, map[string]any{
		"original":   name,
		"normalized": normalized,
	}), nil
}

func (m *Matcher) semantic(ctx context.Context, name string, _ model.LineItem, _ string, _ *Parser) (*model.MatchResult, error) {
	if m.embedder == nil {
		return nil, nil
	}

	vector, err := m.embedder.Embed(ctx, name)
	if err != nil {
		return nil, err
	}

	results, err := m.catalog.SearchBySimilarity(ctx, vector, m.cfg.SemanticFloor)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 || round4(results[0].Similarity) < m.cfg.SemanticMin {
		return nil, nil
	}

	top := results[0]
	result := m.matched(model.StrategySemantic, top.ID, top.Name, top.Similarity, map[string]any{
		"similarity": top.Similarity,
	})
	for _, alt := range results[1:] {
		if len(result.Alternatives) >= m.cfg.MaxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, model.Candidate{ProductID: alt.ID, ProductName: alt.Name, Score: round4(alt.Similarity)})
	}
	return result, nil
}

func (m *Matcher) fuzzy(ctx context.Context, name string, _ model.LineItem, _ string, parser *Parser) (*model.MatchResult, error) {
	entries, err := m.catalog.ListForFuzzyMatch(ctx)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	base := stripPackCount(name)
	invoice := parser.Parse(base)

	type scored struct {
		entry     model.CatalogEntry
		breakdown FuzzyBreakdown
	}
	var hits []scored
	for _, e := range entries {
		b := ScoreFuzzy(base, invoice, e, parser, m.cfg.SizeTolerance)
		if round4(b.Score) >= m.cfg.FuzzyMin {
			hits = append(hits, scored{entry: e, breakdown: b})
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].breakdown.Score > hits[j].breakdown.Score
	})

	best := hits[0]
	result := m.matched(model.StrategyFuzzy, best.entry.ID, best.entry.Name, best.breakdown.Score, best.breakdown.Details())
	for _, h := range hits[1:] {
		if len(result.Alternatives) >= m.cfg.MaxAlternatives {
			break
		}
		result.Alternatives = append(result.Alternatives, model.Candidate{
			ProductID:   h.entry.ID,
			ProductName: h.entry.Name,
			Score:       round4(h.breakdown.Score),
		})
	}
	return result, nil
}

func stripPackCount(name string) string {
	upper := strings.TrimSpace(name)
	if loc := packCountPattern.FindStringIndex(upper); loc != nil {
		return strings.TrimSpace(upper[:loc[0]])
	}
	return upper
}

func sortCandidates(c []model.Candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return c[i].Score > c[j].Score
	})
}

func round4(x float64) float64 {
	return math.Round(x*1e4) / 1e4
}
