package historicalprice_test

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/historicalprice"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func fixedSeries() []historicalprice.PricePoint {
	now := time.Now()
	return []historicalprice.PricePoint{
		{Time: now.Add(-29 * 24 * time.Hour), Price: decimal.NewFromFloat(0.5)},
		{Time: now.Add(-20 * 24 * time.Hour), Price: decimal.NewFromFloat(2.0)},
		{Time: now.Add(-7 * 24 * time.Hour), Price: decimal.NewFromFloat(1.0)},
		{Time: now.Add(-3 * 24 * time.Hour), Price: decimal.NewFromFloat(0.2)},
		{Time: now, Price: decimal.NewFromFloat(1.5)},
	}
}

func TestSevenDaysAgoPriceFindsClosestPoint(t *testing.T) {
	calls := 0
	c := historicalprice.New(zap.NewNop(), historicalprice.DefaultConfig(), func(ctx context.Context, mint string) ([]historicalprice.PricePoint, error) {
		calls++
		return fixedSeries(), nil
	}, "")

	price, ok := c.SevenDaysAgoPrice(context.Background(), "MintA")
	if !ok {
		t.Fatal("expected a price to be found")
	}
	if !price.Equal(decimal.NewFromFloat(1.0)) {
		t.Fatalf("expected the 7-day-old point (1.0), got %s", price)
	}

	// second call within TTL must not hit the fetcher again
	if _, ok := c.SevenDaysAgoPrice(context.Background(), "MintA"); !ok {
		t.Fatal("expected cached lookup to succeed")
	}
	if calls != 1 {
		t.Fatalf("expected the fetcher to be called once (cache hit on 2nd call), got %d calls", calls)
	}
}

func TestThirtyDayHighAndSevenDayLow(t *testing.T) {
	c := historicalprice.New(zap.NewNop(), historicalprice.DefaultConfig(), func(ctx context.Context, mint string) ([]historicalprice.PricePoint, error) {
		return fixedSeries(), nil
	}, "")

	high, ok := c.ThirtyDayHigh(context.Background(), "MintB")
	if !ok || !high.Equal(decimal.NewFromFloat(2.0)) {
		t.Fatalf("expected 30d high of 2.0, got %s (ok=%v)", high, ok)
	}

	low, ok := c.SevenDayLow(context.Background(), "MintB")
	if !ok || !low.Equal(decimal.NewFromFloat(0.2)) {
		t.Fatalf("expected 7d low of 0.2, got %s (ok=%v)", low, ok)
	}
}
