package review

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-price-must-flow/internal/common"
	"github.com/Veraticus/the-price-must-flow/internal/embedding"
	"github.com/Veraticus/the-price-must-flow/internal/matching"
	"github.com/Veraticus/the-price-must-flow/internal/model"
	"github.com/Veraticus/the-price-must-flow/internal/storage"
)

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seed(t *testing.T, store *storage.SQLiteStorage, name string) *model.Product {
	t.Helper()
	p := &model.Product{Name: name}
	require.NoError(t, store.CreateProduct(context.Background(), p))
	return p
}

type staticSuggester struct {
	candidates []model.Candidate
}

func (s staticSuggester) Suggestions(_ context.Context, _ string, limit int) ([]model.Candidate, error) {
	if len(s.candidates) > limit {
		return s.candidates[:limit], nil
	}
	return s.candidates, nil
}

// failingMappings fails the next n UpsertMapping calls.
type failingMappings struct {
	*storage.SQLiteStorage
	n int
}

func (f *failingMappings) UpsertMapping(ctx context.Context, mapping *model.ProductMapping) error {
	if f.n > 0 {
		f.n--
		return errors.New("disk full")
	}
	return f.SQLiteStorage.UpsertMapping(ctx, mapping)
}

var ref = model.InvoiceRef{InvoiceID: "inv-1", VendorID: "RAJA_FOODS"}

func reviewMatch(routing model.Routing) model.MatchResult {
	return model.MatchResult{Routing: routing, Strategy: model.StrategyFuzzy, Confidence: 0.7}
}

func TestEnqueue_Priorities(t *testing.T) {
	store := setupStore(t)
	m, err := NewManager(store, store)
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		routing  model.Routing
		priority int
	}{
		{model.RoutingReviewPriority1, 1},
		{model.RoutingCreationQueue, 1},
		{model.RoutingReviewPriority2, 2},
	}
	for _, tt := range tests {
		item, err := m.Enqueue(ctx, reviewMatch(tt.routing), model.LineItem{ProductName: "X " + string(tt.routing)}, ref)
		require.NoError(t, err)
		assert.Equal(t, tt.priority, item.Priority, tt.routing)
		assert.Equal(t, model.ReviewPending, item.Status)
	}

	_, err = m.Enqueue(ctx, reviewMatch(model.RoutingAutoApprove), model.LineItem{ProductName: "Y"}, ref)
	assert.ErrorIs(t, err, common.ErrNotReviewable)

	pending, err := m.ListPending(ctx, nil)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, 1, pending[0].Priority)
	assert.Equal(t, 1, pending[1].Priority)
	assert.Equal(t, 2, pending[2].Priority)

	two := 2
	onlyTwo, err := m.ListPending(ctx, &two)
	require.NoError(t, err)
	assert.Len(t, onlyTwo, 1)
}

func TestEnqueue_Suggestions(t *testing.T) {
	store := setupStore(t)
	cand := func(id string) model.Candidate { return model.Candidate{ProductID: id, ProductName: id} }
	suggester := staticSuggester{candidates: []model.Candidate{cand("B"), cand("C"), cand("D"), cand("E"), cand("F"), cand("G")}}
	m, err := NewManager(store, store, WithSuggester(suggester))
	require.NoError(t, err)

	match := reviewMatch(model.RoutingReviewPriority1)
	match.ProductID = "TOP"
	match.Alternatives = []model.Candidate{cand("A"), cand("B"), cand("TOP")}

	item, err := m.Enqueue(context.Background(), match, model.LineItem{ProductName: "CASHEW"}, ref)
	require.NoError(t, err)

	var ids []string
	for _, s := range item.Context.Suggestions {
		ids = append(ids, s.ProductID)
	}
	assert.Equal(t, []string{"A", "B", "C", "D", "E"}, ids)

	stored, err := m.Get(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Context.Suggestions, 5)
	assert.Equal(t, "CASHEW", stored.Context.LineItem.ProductName)
}

func TestApprove_TeachesMapping(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	product := seed(t, store, "DEEP CASHEW WHOLE 7OZ")

	m, err := NewManager(store, store, WithLinker(store))
	require.NoError(t, err)

	line := model.LineItem{ProductName: "CASHEW WHL DEEP 7 OZ", InvoiceItemID: "item-9"}
	queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingReviewPriority1), line, ref)
	require.NoError(t, err)

	approved, err := m.Approve(ctx, queued.ID, product.ID, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, approved.Status)
	assert.Equal(t, "alice", approved.Reviewer)
	require.NotNil(t, approved.Decision)
	assert.Equal(t, product.ID, approved.Decision.ProductID)
	assert.NotNil(t, approved.ResolvedAt)

	mapping, err := store.GetLearnedMapping(ctx, line.ProductName, ref.VendorID)
	require.NoError(t, err)
	assert.Equal(t, product.ID, mapping.ProductID)
	assert.Equal(t, model.MappingSourceHuman, mapping.Source)
	assert.InDelta(t, 1.0, mapping.Confidence, 1e-9)

	linked, err := store.GetInvoiceItemProduct(ctx, "item-9")
	require.NoError(t, err)
	assert.Equal(t, product.ID, linked)

	// The next invoice with the same raw name resolves without review.
	matcher, err := matching.New(store, nil, nil, matching.DefaultConfig())
	require.NoError(t, err)
	result, err := matcher.Match(ctx, line, ref.VendorID)
	require.NoError(t, err)
	assert.Equal(t, model.StrategyLearnedMapping, result.Strategy)
	assert.Equal(t, product.ID, result.ProductID)
	assert.Equal(t, model.RoutingAutoApprove, result.Routing)
}

func TestApprove_RetryAfterMappingFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	product := seed(t, store, "DEEP CASHEW WHOLE 7OZ")
	catalog := &failingMappings{SQLiteStorage: store, n: 1}

	m, err := NewManager(store, catalog)
	require.NoError(t, err)

	queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingReviewPriority1), model.LineItem{ProductName: "DEEP CSHW WHL"}, ref)
	require.NoError(t, err)

	_, err = m.Approve(ctx, queued.ID, product.ID, "alice", nil)
	require.Error(t, err)

	current, err := m.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, current.Status)

	approved, err := m.Approve(ctx, queued.ID, product.ID, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewApproved, approved.Status)

	mapping, err := store.GetLearnedMapping(ctx, "DEEP CSHW WHL", ref.VendorID)
	require.NoError(t, err)
	assert.Equal(t, product.ID, mapping.ProductID)
	assert.Equal(t, 1, mapping.UseCount)

	// Approving again with the same product does not touch the mapping.
	_, err = m.Approve(ctx, queued.ID, product.ID, "alice", nil)
	require.NoError(t, err)
	mapping, err = store.GetLearnedMapping(ctx, "DEEP CSHW WHL", ref.VendorID)
	require.NoError(t, err)
	assert.Equal(t, 1, mapping.UseCount)
}

func TestReject_RetryAfterMappingFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	correct := seed(t, store, "HALDIRAM BHUJIA 200G")
	catalog := &failingMappings{SQLiteStorage: store, n: 1}

	m, err := NewManager(store, catalog)
	require.NoError(t, err)

	queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingReviewPriority1), model.LineItem{ProductName: "HLDRM BHJ"}, ref)
	require.NoError(t, err)

	_, err = m.Reject(ctx, queued.ID, "alice", "wrong match", correct.ID)
	require.Error(t, err)

	current, err := m.Get(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewPending, current.Status)

	rejected, err := m.Reject(ctx, queued.ID, "alice", "wrong match", correct.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReviewRejected, rejected.Status)

	mapping, err := store.GetLearnedMapping(ctx, "HLDRM BHJ", ref.VendorID)
	require.NoError(t, err)
	assert.Equal(t, correct.ID, mapping.ProductID)
}

func TestApprove_Transitions(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	first := seed(t, store, "FIRST")
	second := seed(t, store, "SECOND")
	m, err := NewManager(store, store)
	require.NoError(t, err)

	queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingReviewPriority2), model.LineItem{ProductName: "SOMETHING"}, ref)
	require.NoError(t, err)

	_, err = m.Approve(ctx, queued.ID, first.ID, "alice", nil)
	require.NoError(t, err)

	again, err := m.Approve(ctx, queued.ID, first.ID, "bob", nil)
	require.NoError(t, err, "re-approving with the same product is a no-op")
	assert.Equal(t, "alice", again.Reviewer)

	_, err = m.Approve(ctx, queued.ID, second.ID, "bob", nil)
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)

	_, err = m.Reject(ctx, queued.ID, "bob", "wrong", "")
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)

	_, err = m.Skip(ctx, queued.ID, "bob", "later")
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)

	_, err = m.Approve(ctx, "missing", first.ID, "bob", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)

	bad := 1.5
	_, err = m.Approve(ctx, queued.ID, first.ID, "bob", &bad)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestApprove_ConfidenceOverride(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	product := seed(t, store, "MTR RAVA IDLI MIX 500G")
	m, err := NewManager(store, store)
	require.NoError(t, err)

	queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingReviewPriority2), model.LineItem{ProductName: "RAVA IDLI"}, ref)
	require.NoError(t, err)

	conf := 0.9
	_, err = m.Approve(ctx, queued.ID, product.ID, "alice", &conf)
	require.NoError(t, err)

	mapping, err := store.GetLearnedMapping(ctx, "RAVA IDLI", ref.VendorID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, mapping.Confidence, 1e-9)
}

func TestReject(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	correct := seed(t, store, "HALDIRAM BHUJIA 200G")
	m, err := NewManager(store, store)
	require.NoError(t, err)

	t.Run("without correction", func(t *testing.T) {
		queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingReviewPriority1), model.LineItem{ProductName: "MYSTERY"}, ref)
		require.NoError(t, err)

		rejected, err := m.Reject(ctx, queued.ID, "alice", "not ours", "")
		require.NoError(t, err)
		assert.Equal(t, model.ReviewRejected, rejected.Status)
		assert.Equal(t, "not ours", rejected.Decision.Reason)

		_, err = store.GetLearnedMapping(ctx, "MYSTERY", ref.VendorID)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("with correction", func(t *testing.T) {
		queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingReviewPriority1), model.LineItem{ProductName: "HLDRM BHUJIA"}, ref)
		require.NoError(t, err)

		_, err = m.Reject(ctx, queued.ID, "alice", "wrong match", correct.ID)
		require.NoError(t, err)

		mapping, err := store.GetLearnedMapping(ctx, "HLDRM BHUJIA", ref.VendorID)
		require.NoError(t, err)
		assert.Equal(t, correct.ID, mapping.ProductID)
	})

	t.Run("unknown correction leaves item pending", func(t *testing.T) {
		queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingReviewPriority1), model.LineItem{ProductName: "OTHER"}, ref)
		require.NoError(t, err)

		_, err = m.Reject(ctx, queued.ID, "alice", "", "missing-product")
		assert.ErrorIs(t, err, common.ErrNotFound)

		current, err := m.Get(ctx, queued.ID)
		require.NoError(t, err)
		assert.Equal(t, model.ReviewPending, current.Status)
	})
}

func TestSkip(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	m, err := NewManager(store, store)
	require.NoError(t, err)

	queued, err := m.Enqueue(ctx, reviewMatch(model.RoutingCreationQueue), model.LineItem{ProductName: "LATER"}, ref)
	require.NoError(t, err)

	skipped, err := m.Skip(ctx, queued.ID, "alice", "needs the paper invoice")
	require.NoError(t, err)
	assert.Equal(t, model.ReviewSkipped, skipped.Status)

	pending, err := m.ListPending(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCreateNewProduct(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	embedder, err := embedding.New(embedding.Config{Provider: embedding.ProviderLocal})
	require.NoError(t, err)

	m, err := NewManager(store, store, WithEmbedder(embedder), WithLinker(store))
	require.NoError(t, err)

	line := model.LineItem{ProductName: "FYVE ELEMENTS KHAKHRA METHI 200G", Barcode: "8901", InvoiceItemID: "item-1"}
	queued, err := m.Enqueue(ctx, model.MatchResult{Routing: model.RoutingCreationQueue, Strategy: model.StrategyNone}, line, ref)
	require.NoError(t, err)

	product, approved, err := m.CreateNewProduct(ctx, queued.ID, model.NewProduct{Brand: "FYVE", Size: "200G"}, "alice")
	require.NoError(t, err)
	assert.Equal(t, line.ProductName, product.Name)
	assert.Equal(t, "8901", product.Barcode)
	assert.NotEmpty(t, product.Embedding)
	assert.Equal(t, model.ReviewApproved, approved.Status)
	assert.Equal(t, model.ActionCreate, approved.Decision.Action)

	stored, err := store.GetProductByBarcode(ctx, "8901")
	require.NoError(t, err)
	assert.Equal(t, product.ID, stored.ID)

	mapping, err := store.GetLearnedMapping(ctx, line.ProductName, ref.VendorID)
	require.NoError(t, err)
	assert.Equal(t, product.ID, mapping.ProductID)

	_, _, err = m.CreateNewProduct(ctx, queued.ID, model.NewProduct{Name: "AGAIN"}, "bob")
	assert.ErrorIs(t, err, common.ErrAlreadyResolved)
}

func TestNewManager_RequiresStores(t *testing.T) {
	_, err := NewManager(nil, nil)
	assert.ErrorIs(t, err, common.ErrMissingConfig)
}
