package discovery

import (
	"context"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/dexclient"
	"github.com/atlas-desktop/solana-sniper/pkg/types"
)

// DexClient is the subset of internal/dexclient.Client each HTTP-backed
// Source depends on.
type DexClient interface {
	Pair(ctx context.Context, address string) (types.DexPair, error)
	TokenProfiles(ctx context.Context) []types.Candidate
	TokenBoosts(ctx context.Context) []types.Candidate
	Search(ctx context.Context, query string) []types.Candidate
}

// WhitelistSource resolves a fixed, operator-curated list of addresses
// against the pair-price endpoint every cycle.
type WhitelistSource struct {
	client    DexClient
	addresses []string
}

// NewWhitelistSource constructs a WhitelistSource over addresses.
func NewWhitelistSource(client DexClient, addresses []string) *WhitelistSource {
	return &WhitelistSource{client: client, addresses: addresses}
}

func (s *WhitelistSource) Name() string { return "whitelist" }

func (s *WhitelistSource) Fetch(ctx context.Context) ([]types.Candidate, error) {
	out := make([]types.Candidate, 0, len(s.addresses))
	for _, addr := range s.addresses {
		pair, err := s.client.Pair(ctx, addr)
		if err != nil {
			continue
		}
		out = append(out, types.Candidate{
			Address:           addr,
			LiquidityUSD:      pair.LiquidityUSD,
			Volume24hUSD:      pair.VolumeH24,
			Volume1hUSD:       pair.VolumeH1,
			PriceUSD:          pair.PriceUSD,
			PriceChange24hPct: pair.PriceChangeH24,
			Source:            s.Name(),
			DiscoveredAt:      time.Now(),
		})
	}
	return out, nil
}

// BoostSource surfaces tokens the DEX's own promotion/boost feed is
// currently featuring.
type BoostSource struct{ client DexClient }

// NewBoostSource constructs a BoostSource.
func NewBoostSource(client DexClient) *BoostSource { return &BoostSource{client: client} }

func (s *BoostSource) Name() string { return "boost" }

func (s *BoostSource) Fetch(ctx context.Context) ([]types.Candidate, error) {
	return s.client.TokenBoosts(ctx), nil
}

// ProfileSource surfaces tokens with a recently-updated project profile
// (name/socials/description), a weak legitimacy signal used only as
// candidate intake, never as a pass/fail gate.
type ProfileSource struct{ client DexClient }

// NewProfileSource constructs a ProfileSource.
func NewProfileSource(client DexClient) *ProfileSource { return &ProfileSource{client: client} }

func (s *ProfileSource) Name() string { return "profile" }

func (s *ProfileSource) Fetch(ctx context.Context) ([]types.Candidate, error) {
	return s.client.TokenProfiles(ctx), nil
}

// DexFilterSource runs a chain-scoped search query (e.g. by quote token or
// DEX name) to surface candidates the boost/profile feeds miss.
type DexFilterSource struct {
	client DexClient
	query  string
}

// NewDexFilterSource constructs a DexFilterSource for query.
func NewDexFilterSource(client DexClient, query string) *DexFilterSource {
	return &DexFilterSource{client: client, query: query}
}

func (s *DexFilterSource) Name() string { return "dexfilter" }

func (s *DexFilterSource) Fetch(ctx context.Context) ([]types.Candidate, error) {
	return s.client.Search(ctx, s.query), nil
}
