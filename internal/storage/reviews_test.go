package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/model"
)

func TestReviewQueue_Ordering(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := []*model.ReviewQueueItem{
		{OriginalName: "late p2", Priority: 2, CreatedAt: base.Add(2 * time.Minute)},
		{OriginalName: "early p2", Priority: 2, CreatedAt: base},
		{OriginalName: "p1", Priority: 1, CreatedAt: base.Add(5 * time.Minute)},
		{OriginalName: "p1 same time a", Priority: 1, CreatedAt: base.Add(10 * time.Minute)},
		{OriginalName: "p1 same time b", Priority: 1, CreatedAt: base.Add(10 * time.Minute)},
	}
	for _, item := range items {
		require.NoError(t, store.InsertReview(ctx, item))
		assert.NotEmpty(t, item.ID)
	}

	pending, err := store.ListPendingReviews(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, p := range pending {
		names = append(names, p.OriginalName)
	}
	assert.Equal(t, []string{"p1", "p1 same time a", "p1 same time b", "early p2", "late p2"}, names)

	two := 2
	onlyTwo, err := store.ListPendingReviews(ctx, &two)
	require.NoError(t, err)
	assert.Len(t, onlyTwo, 2)
}

func TestReviewQueue_Transitions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	item := &model.ReviewQueueItem{
		OriginalName: "MYSTERY",
		Priority:     1,
		Context: model.ReviewContext{
			Match:       model.MatchResult{Strategy: model.StrategyNone, Routing: model.RoutingCreationQueue},
			Suggestions: []model.Candidate{{ProductID: "p1", ProductName: "MAYBE", Score: 0.3}},
		},
	}
	require.NoError(t, store.InsertReview(ctx, item))

	require.NoError(t, store.UpdateReviewStatus(ctx, item.ID, model.ReviewApproved, "alice", model.ReviewDecision{Action: model.ActionApprove, ProductID: "p1"}))

	got, err := store.GetReview(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, got.Status)
	assert.Equal(t, "alice", got.Reviewer)
	require.NotNil(t, got.Decision)
	assert.Equal(t, "p1", got.Decision.ProductID)
	assert.NotNil(t, got.ResolvedAt)
	require.Len(t, got.Context.Suggestions, 1)
	assert.Equal(t, "MAYBE", got.Context.Suggestions[0].ProductName)

	err = store.UpdateReviewStatus(ctx, item.ID, model.ReviewRejected, "bob", model.ReviewDecision{Action: model.ActionReject})
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)

	err = store.UpdateReviewStatus(ctx, "missing", model.ReviewRejected, "bob", model.ReviewDecision{})
	assert.ErrorIs(t, err, common.ErrNotFound)

	err = store.UpdateReviewStatus(ctx, item.ID, model.ReviewPending, "bob", model.ReviewDecision{})
	assert.ErrorIs(t, err, ErrInvalidStatus)

	pending, err := store.ListPendingReviews(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInsertReview_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	err := store.InsertReview(context.Background(), &model.ReviewQueueItem{OriginalName: "x", Priority: 3})
	assert.ErrorIs(t, err, ErrInvalidReview)
}

func TestLinkInvoiceItem(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.LinkInvoiceItem(ctx, "line-1", "p1"))
	require.NoError(t, store.LinkInvoiceItem(ctx, "line-1", "p2"))

	productID, err := store.GetInvoiceItemProduct(ctx, "line-1")
	require.NoError(t, err)
	assert.Equal(t, "p2", productID)

	_, err = store.GetInvoiceItemProduct(ctx, "line-2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
