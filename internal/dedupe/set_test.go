package dedupe_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/bakkal-monitor/price-radar/internal/dedupe"
	"github.com/bakkal-monitor/price-radar/internal/models"
)

func rec(url string, price float64) models.ProductRecord {
	return models.ProductRecord{ProductName: "Süt 1L", CurrentPrice: price, MarketName: "BIM", ProductURL: url}
}

func TestSetFirstSeenWins(t *testing.T) {
	set := dedupe.NewSet(4)
	require.True(t, set.Add(rec("u1", 10)))
	require.False(t, set.Add(rec("u1", 5)))
	require.True(t, set.Seen("u1"))
	require.Equal(t, 1, set.Len())
}

func TestSetRejectsInvalid(t *testing.T) {
	set := dedupe.NewSet(0)
	require.False(t, set.Add(rec("", 10)))
	require.False(t, set.Add(rec("u1", 0)))
	require.False(t, set.Add(rec("u1", -3)))
	require.False(t, set.Seen("u1"))

	// an invalid sighting does not block a later valid one
	require.True(t, set.Add(rec("u1", 3)))
}

func TestFilterKeepsOrder(t *testing.T) {
	in := []models.ProductRecord{
		rec("a", 1), rec("b", 2), rec("a", 3), rec("", 4), rec("c", 0), rec("c", 5), rec("b", 6),
	}
	want := []models.ProductRecord{rec("a", 1), rec("b", 2), rec("c", 5)}

	got := dedupe.Filter(in)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Filter mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterIdempotent(t *testing.T) {
	in := []models.ProductRecord{rec("x", 9), rec("y", 8), rec("x", 7), rec("z", 1)}
	once := dedupe.Filter(in)
	require.Equal(t, once, dedupe.Filter(once))
}

func TestFilterEmpty(t *testing.T) {
	require.Empty(t, dedupe.Filter(nil))
}
