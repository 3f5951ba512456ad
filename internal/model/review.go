package model

import "time"

// ReviewStatus is the state of a review queue item.
type ReviewStatus string

// Review status constants. Pending is the only non-terminal state.
const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
	ReviewSkipped  ReviewStatus = "skipped"
)

// IsTerminal reports whether no further transition is allowed.
func (s ReviewStatus) IsTerminal() bool {
	return s != ReviewPending
}

// Review actions recorded on a decision.
const (
	ActionApprove = "approve"
	ActionReject  = "reject"
	ActionCreate  = "create"
	ActionSkip    = "skip"
)

// ReviewContext is everything a reviewer needs to make a decision.
type ReviewContext struct {
	Match       MatchResult `json:"match"`
	LineItem    LineItem    `json:"line_item"`
	Suggestions []Candidate `json:"suggestions,omitempty"`
}

// ReviewDecision records what the reviewer decided.
type ReviewDecision struct {
	Confidence *float64 `json:"confidence,omitempty"`
	Action     string   `json:"action"`
	ProductID  string   `json:"product_id,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// ReviewQueueItem is a line awaiting (or past) a human decision.
type ReviewQueueItem struct {
	CreatedAt     time.Time
	ResolvedAt    *time.Time
	Decision      *ReviewDecision
	ID            string
	InvoiceID     string
	InvoiceItemID string
	VendorID      string
	OriginalName  string
	Status        ReviewStatus
	Reviewer      string
	Context       ReviewContext
	Priority      int
}
