package model

// MatchStrategy names the cascade step that produced a match.
type MatchStrategy string

// Match strategy constants, in cascade order.
const (
	StrategyLearnedMapping MatchStrategy = "learned_mapping"
	StrategyBarcode        MatchStrategy = "barcode_match"
	StrategyStructured     MatchStrategy = "structured_match"
	StrategyNormalized     MatchStrategy = "normalized_match"
	StrategySemantic       MatchStrategy = "semantic_search"
	StrategyFuzzy          MatchStrategy = "fuzzy_match"
	StrategyNone           MatchStrategy = "no_match"
)

// Routing decides what happens to a match downstream.
type Routing string

// Routing constants, from most to least trusted.
const (
	RoutingAutoApprove     Routing = "auto_approve"
	RoutingReviewPriority2 Routing = "review_priority_2"
	RoutingReviewPriority1 Routing = "review_priority_1"
	RoutingCreationQueue   Routing = "creation_queue"
)

// NeedsReview reports whether the routing lands in the human review queue.
func (r Routing) NeedsReview() bool {
	return r != RoutingAutoApprove
}

// Candidate is a possible catalog product for a line.
type Candidate struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Score       float64 `json:"score"`
}

// MatchResult is the outcome of resolving one invoice line.
type MatchResult struct {
	Details      map[string]any `json:"details,omitempty"`
	ProductID    string         `json:"product_id,omitempty"`
	ProductName  string         `json:"product_name,omitempty"`
	Strategy     MatchStrategy  `json:"strategy"`
	Routing      Routing        `json:"routing"`
	Alternatives []Candidate    `json:"alternatives,omitempty"`
	Confidence   float64        `json:"confidence"`
	Matched      bool           `json:"matched"`
}

// MatchedLineItem pairs a line with its match.
type MatchedLineItem struct {
	Match    MatchResult
	Item     LineItem
	Currency string
}
