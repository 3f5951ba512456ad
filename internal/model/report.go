package model

import "time"

// ItemOutcome is the per-line result of processing an invoice.
type ItemOutcome struct {
	Price      *PriceUpdateResult
	ReviewID   string
	Error      string
	Match      MatchResult
	LineNumber int
	Failed     bool
}

// InvoiceReport summarizes one processed invoice.
type InvoiceReport struct {
	InvoiceID      string
	SkippedReasons []string
	Items          []ItemOutcome
	Duration       time.Duration
	AutoApproved   int
	NeedsReview    int
	Created        int
	PriceUpdates   int
	PriceSkipped   int
	Failures       int
}
