package watermark

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/marketfeed/internal/model"
)

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func descriptor(t *testing.T, p model.Provider, s model.Stream) Descriptor {
	t.Helper()
	d, err := DefaultRules().Describe("test-"+string(p), p, s)
	require.NoError(t, err)
	return d
}

func TestBuildPlan_BootstrapPerSymbol(t *testing.T) {
	ctx := context.Background()
	e := NewEngine(NewMemoryStore(), nil)
	d := descriptor(t, model.ProviderFinnhub, model.StreamCompanyNews)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	plan, err := e.BuildPlan(ctx, d, []string{"aapl"}, now)
	require.NoError(t, err)

	want := mustTime(t, "2024-01-13T12:00:00Z")
	assert.Equal(t, want, plan.SymbolSince["AAPL"])
	assert.Equal(t, want, plan.Since)
	assert.Nil(t, plan.MinID)
}

func TestBuildPlan_TimestampGlobal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderRSS, model.StreamMacroNews)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	plan, err := e.BuildPlan(ctx, d, nil, now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-24*time.Hour), plan.Since)

	require.NoError(t, store.Upsert(ctx, model.TimestampWatermark(d.GlobalKey(), mustTime(t, "2024-01-15T11:00:00Z"))))

	plan, err = e.BuildPlan(ctx, d, nil, now)
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-01-15T10:50:00Z"), plan.Since)
	assert.Empty(t, plan.SymbolSince)
}

func TestBuildPlan_PerSymbolIndependent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderFinnhub, model.StreamCompanyNews)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	require.NoError(t, store.Upsert(ctx, model.TimestampWatermark(d.SymbolKey("AAPL"), mustTime(t, "2024-01-15T11:00:00Z"))))

	plan, err := e.BuildPlan(ctx, d, []string{"AAPL", "MSFT", "aapl"}, now)
	require.NoError(t, err)

	require.Len(t, plan.SymbolSince, 2)
	assert.Equal(t, mustTime(t, "2024-01-15T10:55:00Z"), plan.SymbolSince["AAPL"])
	assert.Equal(t, mustTime(t, "2024-01-13T12:00:00Z"), plan.SymbolSince["MSFT"])
	assert.Equal(t, mustTime(t, "2024-01-13T12:00:00Z"), plan.Since, "since is the earliest per-symbol value")
}

func TestBuildPlan_SymbolOverridesGlobal(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderReddit, model.StreamSocial)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	require.NoError(t, store.Upsert(ctx, model.TimestampWatermark(d.GlobalKey(), mustTime(t, "2024-01-15T06:00:00Z"))))
	require.NoError(t, store.Upsert(ctx, model.TimestampWatermark(d.SymbolKey("TSLA"), mustTime(t, "2024-01-15T11:00:00Z"))))

	plan, err := e.BuildPlan(ctx, d, []string{"TSLA", "NVDA"}, now)
	require.NoError(t, err)

	assert.Equal(t, mustTime(t, "2024-01-15T10:50:00Z"), plan.SymbolSince["TSLA"])
	assert.Equal(t, mustTime(t, "2024-01-15T05:50:00Z"), plan.SymbolSince["NVDA"], "falls back to global cursor")
}

func TestBuildPlan_IDCursor(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderFinnhub, model.StreamMacroNews)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	plan, err := e.BuildPlan(ctx, d, nil, now)
	require.NoError(t, err)
	assert.Nil(t, plan.MinID, "no id filter on first run")
	assert.Equal(t, mustTime(t, "2024-01-13T12:00:00Z"), plan.Since)

	require.NoError(t, store.Upsert(ctx, model.IDWatermark(d.GlobalKey(), 100)))

	plan, err = e.BuildPlan(ctx, d, nil, now)
	require.NoError(t, err)
	require.NotNil(t, plan.MinID)
	assert.Equal(t, int64(100), *plan.MinID)
	assert.True(t, plan.Since.IsZero())
}

func TestBuildPlan_SnapshotSource(t *testing.T) {
	e := NewEngine(NewMemoryStore(), nil)
	d := descriptor(t, model.ProviderPolygon, model.StreamPrice)

	plan, err := e.BuildPlan(context.Background(), d, []string{"AAPL"}, time.Now())
	require.NoError(t, err)
	assert.True(t, plan.Bootstrap())
}

func TestCommit_IDAdvancesToMax(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderFinnhub, model.StreamMacroNews)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	require.NoError(t, store.Upsert(ctx, model.IDWatermark(d.GlobalKey(), 100)))

	var maxID int64
	for _, id := range []int64{101, 105, 99} {
		maxID = max(maxID, id)
	}
	written, err := e.Commit(ctx, d, nil, &maxID, now)
	require.NoError(t, err)
	require.Len(t, written, 1)

	w, err := store.Get(ctx, d.GlobalKey())
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, int64(105), *w.ID)
	assert.Nil(t, w.Timestamp)
}

func TestCommit_IDNoopWithoutMax(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderFinnhub, model.StreamMacroNews)

	written, err := e.Commit(ctx, d, []Mark{{At: time.Now()}}, nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, written)

	w, err := store.Get(ctx, d.GlobalKey())
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestCommit_IDNeverDecreases(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderFinnhub, model.StreamMacroNews)

	for _, id := range []int64{10, 7, 12, 3} {
		_, err := e.Commit(ctx, d, nil, &id, time.Now())
		require.NoError(t, err)
	}

	w, err := store.Get(ctx, d.GlobalKey())
	require.NoError(t, err)
	assert.Equal(t, int64(12), *w.ID)
}

func TestCommit_TimestampMonotonicAndClamped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderPolygon, model.StreamCompanyNews)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	_, err := e.Commit(ctx, d, []Mark{
		{At: mustTime(t, "2024-01-15T10:00:00Z")},
		{At: mustTime(t, "2024-01-15T11:30:00Z")},
	}, nil, now)
	require.NoError(t, err)

	w, err := store.Get(ctx, d.GlobalKey())
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-01-15T11:30:00Z"), *w.Timestamp)

	// Older data never moves the cursor back.
	written, err := e.Commit(ctx, d, []Mark{{At: mustTime(t, "2024-01-15T09:00:00Z")}}, nil, now)
	require.NoError(t, err)
	assert.Empty(t, written)

	// Future timestamps are clamped to now.
	_, err = e.Commit(ctx, d, []Mark{{At: mustTime(t, "2024-01-16T00:00:00Z")}}, nil, now)
	require.NoError(t, err)

	w, err = store.Get(ctx, d.GlobalKey())
	require.NoError(t, err)
	assert.Equal(t, now, *w.Timestamp)
}

func TestCommit_EmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderPolygon, model.StreamCompanyNews)

	written, err := e.Commit(ctx, d, nil, nil, time.Now())
	require.NoError(t, err)
	assert.Empty(t, written)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCommit_PerSymbol(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderFinnhub, model.StreamCompanyNews)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	written, err := e.Commit(ctx, d, []Mark{
		{Symbol: "aapl", At: mustTime(t, "2024-01-15T10:00:00Z")},
		{Symbol: "AAPL", At: mustTime(t, "2024-01-15T11:00:00Z")},
		{Symbol: "MSFT", At: mustTime(t, "2024-01-15T09:00:00Z")},
	}, nil, now)
	require.NoError(t, err)
	assert.Len(t, written, 2)

	aapl, err := store.Get(ctx, d.SymbolKey("AAPL"))
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-01-15T11:00:00Z"), *aapl.Timestamp)

	msft, err := store.Get(ctx, d.SymbolKey("MSFT"))
	require.NoError(t, err)
	assert.Equal(t, mustTime(t, "2024-01-15T09:00:00Z"), *msft.Timestamp)

	global, err := store.Get(ctx, d.GlobalKey())
	require.NoError(t, err)
	assert.Nil(t, global, "per-symbol commits never touch the global cursor")
}

// failingStore rejects writes for one symbol.
type failingStore struct {
	*MemoryStore
	failSymbol string
}

func (s *failingStore) Upsert(ctx context.Context, w model.Watermark) error {
	if w.Key.Symbol == s.failSymbol {
		return errors.New("disk full")
	}
	return s.MemoryStore.Upsert(ctx, w)
}

func TestCommit_PerSymbolFailureIsolated(t *testing.T) {
	ctx := context.Background()
	store := &failingStore{MemoryStore: NewMemoryStore(), failSymbol: "AAPL"}
	e := NewEngine(store, nil)
	d := descriptor(t, model.ProviderReddit, model.StreamSocial)
	now := mustTime(t, "2024-01-15T12:00:00Z")

	written, err := e.Commit(ctx, d, []Mark{
		{Symbol: "AAPL", At: mustTime(t, "2024-01-15T10:00:00Z")},
		{Symbol: "MSFT", At: mustTime(t, "2024-01-15T10:00:00Z")},
		{Symbol: "TSLA", At: mustTime(t, "2024-01-15T10:00:00Z")},
	}, nil, now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, written, 2)

	for _, sym := range []string{"MSFT", "TSLA"} {
		w, err := store.Get(ctx, d.SymbolKey(sym))
		require.NoError(t, err)
		assert.NotNil(t, w, sym)
	}
}

func TestMemoryStore_NormalizesGlobalSymbol(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	key := model.WatermarkKey{
		Provider: model.ProviderRSS,
		Stream:   model.StreamMacroNews,
		Scope:    model.ScopeGlobal,
		Symbol:   "AAPL",
	}
	require.NoError(t, store.Upsert(ctx, model.Watermark{Key: key, ID: ptr(int64(5))}))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.GlobalSymbol, all[0].Key.Symbol)
	assert.False(t, all[0].UpdatedAt.IsZero())
}

func TestMemoryStore_RejectsInvalidValue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	key := model.GlobalKey(model.ProviderRSS, model.StreamMacroNews)
	ts := time.Now()

	err := store.Upsert(ctx, model.Watermark{Key: key, Timestamp: &ts, ID: ptr(int64(1))})
	assert.ErrorIs(t, err, model.ErrWatermarkValue)

	err = store.Upsert(ctx, model.Watermark{Key: key})
	assert.ErrorIs(t, err, model.ErrWatermarkValue)
}

func ptr[T any](v T) *T { return &v }
