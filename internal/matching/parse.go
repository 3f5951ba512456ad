package matching

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/Veraticus/the-price-must-flow/internal/vendorrules"
)

var (
	packCountPattern = regexp.MustCompile(`\(\s*(\d+)\s*\)\s*$`)
	sizePattern      = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(KILOGRAMS?|KGS?|GRAMS?|GMS?|G|OUNCES?|OZ|POUNDS?|LBS?|LITRES?|LITERS?|LTR|ML|L)\b`)
)

// Dimension separates weights from volumes so they are never compared.
type Dimension int

// Dimensions.
const (
	DimensionNone Dimension = iota
	DimensionWeight
	DimensionVolume
)

// Size is a parsed package size converted to grams or millilitres.
type Size struct {
	Raw       string
	Unit      string
	Value     float64
	Base      float64
	Dimension Dimension
}

// Compatible reports whether two sizes are within tolerance of each other,
// as a fraction of the larger.
func (s Size) Compatible(other Size, tolerance float64) bool {
	if s.Dimension == DimensionNone || s.Dimension != other.Dimension {
		return false
	}
	larger := math.Max(s.Base, other.Base)
	if larger == 0 {
		return false
	}
	return math.Abs(s.Base-other.Base)/larger < tolerance
}

// ParsedName is a product name broken into brand, size and keywords.
type ParsedName struct {
	Brand     string
	Keywords  []string
	Size      Size
	PackCount int
}

// Parser splits product names using a brand dictionary.
type Parser struct {
	dict *vendorrules.Dictionary
}

// NewParser creates a parser over dict.
func NewParser(dict *vendorrules.Dictionary) *Parser {
	return &Parser{dict: dict}
}

// Parse extracts structure from name. A trailing "(N)" is read as the
// number of units per pack and excluded from keywords.
func (p *Parser) Parse(name string) ParsedName {
	var parsed ParsedName
	rest := strings.ToUpper(strings.TrimSpace(name))

	if m := packCountPattern.FindStringSubmatch(rest); m != nil {
		parsed.PackCount, _ = strconv.Atoi(m[1])
		rest = strings.TrimSpace(rest[:len(rest)-len(m[0])])
	}

	parsed.Brand, rest = p.dict.DetectPrefix(rest)

	if size, ok := parseSize(rest); ok {
		parsed.Size = size
		rest = sizePattern.ReplaceAllString(rest, " ")
	}

	for _, tok := range tokens(rest) {
		if len(tok) > 2 {
			parsed.Keywords = append(parsed.Keywords, tok)
		}
	}
	return parsed
}

// Canonical maps a brand spelling to the dictionary's canonical brand.
func (p *Parser) Canonical(brand string) string {
	return p.dict.Canonical(brand)
}

// Brand returns the brand a product name starts with.
func (p *Parser) Brand(name string) string {
	brand, _ := p.dict.DetectPrefix(name)
	return brand
}

func parseSize(s string) (Size, bool) {
	m := sizePattern.FindStringSubmatch(strings.ToUpper(s))
	if m == nil {
		return Size{}, false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Size{}, false
	}

	size := Size{Raw: m[1] + m[2], Value: value, Unit: m[2]}
	switch {
	case strings.HasPrefix(m[2], "KILOGRAM"), strings.HasPrefix(m[2], "KG"):
		size.Base, size.Dimension = value*1000, DimensionWeight
	case strings.HasPrefix(m[2], "GRAM"), strings.HasPrefix(m[2], "GM"), m[2] == "G":
		size.Base, size.Dimension = value, DimensionWeight
	case strings.HasPrefix(m[2], "OUNCE"), m[2] == "OZ":
		size.Base, size.Dimension = value*28.3495, DimensionWeight
	case strings.HasPrefix(m[2], "POUND"), strings.HasPrefix(m[2], "LB"):
		size.Base, size.Dimension = value*453.592, DimensionWeight
	case m[2] == "ML":
		size.Base, size.Dimension = value, DimensionVolume
	default:
		size.Base, size.Dimension = value*1000, DimensionVolume
	}
	return size, true
}
