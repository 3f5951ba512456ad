// Package storage provides the data persistence layer for the pricer application.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/the-price-must-flow/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrInvalidProduct = errors.New("invalid product")
	ErrInvalidMapping = errors.New("invalid product mapping")
	ErrInvalidReview  = errors.New("invalid review item")
	ErrInvalidPrice   = errors.New("invalid price")
	ErrInvalidStatus  = errors.New("invalid status")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateProduct(p *model.Product) error {
	if p == nil {
		return fmt.Errorf("%w: product", ErrNilParameter)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProduct)
	}
	if p.Cost != nil && *p.Cost < 0 {
		return fmt.Errorf("%w: negative cost", ErrInvalidProduct)
	}
	return nil
}

func validateMapping(m *model.ProductMapping) error {
	if m == nil {
		return fmt.Errorf("%w: mapping", ErrNilParameter)
	}
	if strings.TrimSpace(m.OriginalName) == "" {
		return fmt.Errorf("%w: missing original name", ErrInvalidMapping)
	}
	if m.ProductID == "" {
		return fmt.Errorf("%w: missing product id", ErrInvalidMapping)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidMapping)
	}
	switch m.Source {
	case model.MappingSourceHuman, model.MappingSourceSystem:
	default:
		return fmt.Errorf("%w: source %q", ErrInvalidMapping, m.Source)
	}
	return nil
}

func validateReview(item *model.ReviewQueueItem) error {
	if item == nil {
		return fmt.Errorf("%w: review item", ErrNilParameter)
	}
	if strings.TrimSpace(item.OriginalName) == "" {
		return fmt.Errorf("%w: missing original name", ErrInvalidReview)
	}
	if item.Priority != 1 && item.Priority != 2 {
		return fmt.Errorf("%w: priority must be 1 or 2, got %d", ErrInvalidReview, item.Priority)
	}
	return nil
}

func validateHistoryEntry(e *model.PriceHistoryEntry) error {
	if e == nil {
		return fmt.Errorf("%w: history entry", ErrNilParameter)
	}
	if e.ProductID == "" {
		return fmt.Errorf("%w: missing product id", ErrInvalidPrice)
	}
	if e.NewCost <= 0 {
		return fmt.Errorf("%w: new cost must be positive", ErrInvalidPrice)
	}
	if e.Currency == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidPrice)
	}
	return nil
}

// nameKey is the case- and spacing-insensitive form used for name lookups.
func nameKey(name string) string {
	return strings.Join(strings.Fields(strings.ToUpper(name)), " ")
}
