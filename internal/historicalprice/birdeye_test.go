package historicalprice_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/historicalprice"
)

func newBirdeyeFixture(t *testing.T, wantType string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, _ := url.ParseQuery(r.URL.RawQuery)
		if got := q.Get("type"); wantType != "" && got != wantType {
			t.Errorf("expected type=%s, got %s", wantType, got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"items":[
			{"value":1.5,"unixTime":1700000000},
			{"value":2.5,"unixTime":1700003600}
		]}}`))
	}))
}

func TestFetchReturnsDailyCloses(t *testing.T) {
	srv := newBirdeyeFixture(t, "1D")
	defer srv.Close()

	c := historicalprice.NewBirdeyeClient(srv.URL, "", 2*time.Second)
	points, err := c.Fetch(context.Background(), "MintAddr111")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 points, got %d", len(points))
	}
	if points[1].Time.Before(points[0].Time) {
		t.Fatal("expected points in ascending time order as returned by upstream")
	}
}

func TestHourlyClosesUsesHourlyInterval(t *testing.T) {
	srv := newBirdeyeFixture(t, "1H")
	defer srv.Close()

	c := historicalprice.NewBirdeyeClient(srv.URL, "apikey", 2*time.Second)
	closes, err := c.HourlyCloses(context.Background(), "MintAddr111")
	if err != nil {
		t.Fatalf("HourlyCloses: %v", err)
	}
	if len(closes) != 2 {
		t.Fatalf("expected 2 closes, got %d", len(closes))
	}
	if closes[0].Equal(closes[1]) {
		t.Fatal("expected distinct close values from fixture")
	}
}

func TestFetchPropagatesUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := historicalprice.NewBirdeyeClient(srv.URL, "", 2*time.Second)
	if _, err := c.Fetch(context.Background(), "m"); err == nil {
		t.Fatal("expected an error when the upstream returns a non-2xx status")
	}
}
