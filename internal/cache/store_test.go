package cache

import (
	"database/sql"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/swingscan/swingscan/internal/clock"
)

func setupStore(t *testing.T) (*Store, *clock.Fake) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	clk := clock.NewFake(time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC))
	store, err := NewStore(db, clk, zerolog.Nop())
	require.NoError(t, err)

	return store, clk
}

type testPayload struct {
	Symbol string  `json:"symbol"`
	Score  int     `json:"score"`
	Price  float64 `json:"price"`
}

func TestWriteAndGet(t *testing.T) {
	store, _ := setupStore(t)

	payload := testPayload{Symbol: "AAPL", Score: 8, Price: 190.5}
	meta := WriteMeta{BasePrice: 190.5, Source: SourceUser, TTL: 24 * time.Hour}
	require.NoError(t, store.Write(PlanKey("AAPL"), payload, meta))

	entry, err := store.Get(PlanKey("AAPL"))
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, "plan:AAPL", entry.Key)
	assert.Equal(t, int64(1), entry.GenerationCount)
	assert.Equal(t, SourceUser, entry.Source)
	assert.Equal(t, 190.5, entry.BasePrice)
	assert.JSONEq(t, `{"symbol":"AAPL","score":8,"price":190.5}`, string(entry.Payload))
}

func TestGetMissingKey(t *testing.T) {
	store, _ := setupStore(t)

	entry, err := store.Get(PlanKey("NOPE"))
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestWriteIsFullReplaceAndIncrementsGeneration(t *testing.T) {
	store, _ := setupStore(t)
	key := PlanKey("AAPL")

	require.NoError(t, store.Write(key, testPayload{Symbol: "AAPL", Score: 5}, WriteMeta{Source: SourceScheduled, TTL: time.Hour}))
	require.NoError(t, store.Write(key, testPayload{Symbol: "AAPL", Score: 9}, WriteMeta{Source: SourceUser, TTL: time.Hour}))

	entry, err := store.Get(key)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, int64(2), entry.GenerationCount)
	assert.Equal(t, SourceUser, entry.Source)
	assert.JSONEq(t, `{"symbol":"AAPL","score":9,"price":0}`, string(entry.Payload))
}

func TestIsStale(t *testing.T) {
	store, clk := setupStore(t)
	key := ScreenerKey("MSFT")

	// No entry at all
	stale, err := store.IsStale(key, time.Hour)
	require.NoError(t, err)
	assert.True(t, stale)

	require.NoError(t, store.Write(key, testPayload{Symbol: "MSFT"}, WriteMeta{Source: SourceScheduled, TTL: 24 * time.Hour}))

	// Fresh immediately after a write
	stale, err = store.IsStale(key, time.Hour)
	require.NoError(t, err)
	assert.False(t, stale)

	// Stale once maxAge elapses
	clk.Advance(2 * time.Hour)
	stale, err = store.IsStale(key, time.Hour)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestIsStaleAfterExpiry(t *testing.T) {
	store, clk := setupStore(t)
	key := PlanKey("TSLA")

	require.NoError(t, store.Write(key, testPayload{Symbol: "TSLA"}, WriteMeta{Source: SourceUser, TTL: 30 * time.Minute}))

	// Within maxAge but past expires_at
	clk.Advance(45 * time.Minute)
	stale, err := store.IsStale(key, 4*time.Hour)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestSweepOlderThan(t *testing.T) {
	store, clk := setupStore(t)

	require.NoError(t, store.Write(PlanKey("OLD"), testPayload{Symbol: "OLD"}, WriteMeta{Source: SourceScheduled, TTL: time.Hour}))

	clk.Advance(4 * 24 * time.Hour)
	require.NoError(t, store.Write(PlanKey("NEW"), testPayload{Symbol: "NEW"}, WriteMeta{Source: SourceScheduled, TTL: time.Hour}))

	deleted, err := store.SweepOlderThan(3 * 24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	old, err := store.Get(PlanKey("OLD"))
	require.NoError(t, err)
	assert.Nil(t, old)

	fresh, err := store.Get(PlanKey("NEW"))
	require.NoError(t, err)
	assert.NotNil(t, fresh)
}

func TestSweepPreservesCurrentDay(t *testing.T) {
	store, clk := setupStore(t)

	// Written at 10:00 today; by 23:00 it is older than a 12h retention
	// window but still belongs to the current day.
	require.NoError(t, store.Write(PlanKey("TODAY"), testPayload{Symbol: "TODAY"}, WriteMeta{Source: SourceScheduled, TTL: time.Hour}))
	clk.Advance(13 * time.Hour)

	deleted, err := store.SweepOlderThan(12 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	entry, err := store.Get(PlanKey("TODAY"))
	require.NoError(t, err)
	assert.NotNil(t, entry, "same-day entries must survive the sweep")
}

func TestTopKeysByGeneration(t *testing.T) {
	store, _ := setupStore(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Write(PlanKey("HOT"), testPayload{Symbol: "HOT"}, WriteMeta{Source: SourcePageView, TTL: time.Hour}))
	}
	require.NoError(t, store.Write(PlanKey("COLD"), testPayload{Symbol: "COLD"}, WriteMeta{Source: SourceScheduled, TTL: time.Hour}))

	keys, err := store.TopKeysByGeneration(PlanPrefix, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"plan:HOT", "plan:COLD"}, keys)
}

func TestListByPrefix(t *testing.T) {
	store, _ := setupStore(t)

	require.NoError(t, store.Write(ScreenerKey("B"), testPayload{Symbol: "B"}, WriteMeta{Source: SourceScheduled, TTL: time.Hour}))
	require.NoError(t, store.Write(ScreenerKey("A"), testPayload{Symbol: "A"}, WriteMeta{Source: SourceScheduled, TTL: time.Hour}))
	require.NoError(t, store.Write(PlanKey("A"), testPayload{Symbol: "A"}, WriteMeta{Source: SourceUser, TTL: time.Hour}))

	entries, err := store.ListByPrefix(ScreenerPrefix)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "screener:A", entries[0].Key)
	assert.Equal(t, "screener:B", entries[1].Key)
}
