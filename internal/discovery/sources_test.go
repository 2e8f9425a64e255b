package discovery_test

import (
	"context"
	"testing"

	"github.com/atlas-desktop/solana-sniper/internal/discovery"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
	"github.com/shopspring/decimal"
)

type stubDexClient struct {
	pairs     map[string]types.DexPair
	boosts    []types.Candidate
	profiles  []types.Candidate
	search    []types.Candidate
	searchArg string
}

func (s *stubDexClient) Pair(ctx context.Context, address string) (types.DexPair, error) {
	return s.pairs[address], nil
}

func (s *stubDexClient) TokenProfiles(ctx context.Context) []types.Candidate { return s.profiles }
func (s *stubDexClient) TokenBoosts(ctx context.Context) []types.Candidate  { return s.boosts }
func (s *stubDexClient) Search(ctx context.Context, query string) []types.Candidate {
	s.searchArg = query
	return s.search
}

func TestWhitelistSourceResolvesEachAddress(t *testing.T) {
	stub := &stubDexClient{pairs: map[string]types.DexPair{
		"a": {PriceUSD: decimal.NewFromInt(1), LiquidityUSD: decimal.NewFromInt(1000)},
	}}
	src := discovery.NewWhitelistSource(stub, []string{"a", "missing"})

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(got) != 1 || got[0].Address != "a" {
		t.Fatalf("expected only the resolvable address to surface, got %+v", got)
	}
	if got[0].Source != "whitelist" {
		t.Fatalf("expected Source to be tagged whitelist, got %q", got[0].Source)
	}
}

func TestBoostAndProfileSourcesPassThrough(t *testing.T) {
	boosts := []types.Candidate{{Address: "boosted"}}
	profiles := []types.Candidate{{Address: "profiled"}}
	stub := &stubDexClient{boosts: boosts, profiles: profiles}

	boostGot, _ := discovery.NewBoostSource(stub).Fetch(context.Background())
	if len(boostGot) != 1 || boostGot[0].Address != "boosted" {
		t.Fatalf("unexpected boost source output: %+v", boostGot)
	}

	profileGot, _ := discovery.NewProfileSource(stub).Fetch(context.Background())
	if len(profileGot) != 1 || profileGot[0].Address != "profiled" {
		t.Fatalf("unexpected profile source output: %+v", profileGot)
	}
}

func TestDexFilterSourcePassesQueryThrough(t *testing.T) {
	stub := &stubDexClient{search: []types.Candidate{{Address: "found"}}}
	src := discovery.NewDexFilterSource(stub, "raydium")

	got, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if stub.searchArg != "raydium" {
		t.Fatalf("expected query %q to reach the client, got %q", "raydium", stub.searchArg)
	}
	if len(got) != 1 || got[0].Address != "found" {
		t.Fatalf("unexpected dexfilter output: %+v", got)
	}
}
