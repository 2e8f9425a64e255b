// Package chain wraps the Solana JSON-RPC client behind the RPC Budget
// Governor, and multiplexes log/slot subscriptions by reference count so
// that multiple interested observers share one underlying chain
// subscription.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/atlas-desktop/solana-sniper/internal/agenterrors"
	"github.com/atlas-desktop/solana-sniper/internal/budget"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
)

// Client is the budget-gated chain RPC facade. Every method checks the
// Governor's admission predicate before calling, and records the call
// afterward regardless of outcome.
type Client struct {
	logger  *zap.Logger
	rpc     *rpc.Client
	wsURL   string
	gov     *budget.Governor
	commitment rpc.CommitmentType
}

// Config configures a Client.
type Config struct {
	RPCEndpoint   string
	WSEndpoint    string
	Commitment    rpc.CommitmentType // default rpc.CommitmentProcessed
}

// New constructs a Client over the given endpoints, gated by gov.
func New(logger *zap.Logger, cfg Config, gov *budget.Governor) *Client {
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = rpc.CommitmentProcessed
	}
	return &Client{
		logger:     logger.Named("chain"),
		rpc:        rpc.New(cfg.RPCEndpoint),
		wsURL:      cfg.WSEndpoint,
		gov:        gov,
		commitment: commitment,
	}
}

func (c *Client) admit(method string) error {
	if !c.gov.MayCall(method) {
		return agenterrors.New(agenterrors.BudgetExhausted, "chain", fmt.Errorf("rpc budget exhausted, refusing %s", method))
	}
	return nil
}

// GetBalance fetches the lamport balance of pubkey.
func (c *Client) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	const method = "getBalance"
	if err := c.admit(method); err != nil {
		return 0, err
	}
	defer c.gov.Record(method)
	out, err := c.rpc.GetBalance(ctx, pubkey, c.commitment)
	if err != nil {
		return 0, agenterrors.New(agenterrors.RpcError, "chain", err)
	}
	return out.Value, nil
}

// GetLatestBlockhash fetches the most recent blockhash for tx construction.
func (c *Client) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	const method = "getLatestBlockhash"
	if err := c.admit(method); err != nil {
		return solana.Hash{}, err
	}
	defer c.gov.Record(method)
	out, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Hash{}, agenterrors.New(agenterrors.RpcError, "chain", err)
	}
	return out.Value.Blockhash, nil
}

// GetFeeForMessage estimates the lamport fee for a compiled message.
func (c *Client) GetFeeForMessage(ctx context.Context, msgBase64 string) (uint64, error) {
	const method = "getFeeForMessage"
	if err := c.admit(method); err != nil {
		return 0, err
	}
	defer c.gov.Record(method)
	out, err := c.rpc.GetFeeForMessage(ctx, msgBase64, c.commitment)
	if err != nil {
		return 0, agenterrors.New(agenterrors.RpcError, "chain", err)
	}
	if out.Value == nil {
		return 0, agenterrors.New(agenterrors.RpcError, "chain", fmt.Errorf("fee unavailable for message"))
	}
	return *out.Value, nil
}

// TokenAccount is the subset of a parsed SPL token account the agent needs.
type TokenAccount struct {
	Mint     string
	Amount   uint64
	Decimals uint8
}

// GetParsedTokenAccountsByOwner lists every SPL token account owned by owner.
func (c *Client) GetParsedTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]TokenAccount, error) {
	const method = "getParsedTokenAccountsByOwner"
	if err := c.admit(method); err != nil {
		return nil, err
	}
	defer c.gov.Record(method)
	out, err := c.rpc.GetTokenAccountsByOwner(ctx, owner, &rpc.GetTokenAccountsConfig{
		ProgramId: solana.TokenProgramID.ToPointer(),
	}, &rpc.GetTokenAccountsOpts{
		Encoding:   solana.EncodingJSONParsed,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, agenterrors.New(agenterrors.RpcError, "chain", err)
	}
	accounts := make([]TokenAccount, 0, len(out.Value))
	for _, acc := range out.Value {
		parsed, ok := extractParsedTokenAccount(acc.Account.Data.GetRawJSON())
		if !ok {
			continue
		}
		accounts = append(accounts, parsed)
	}
	return accounts, nil
}

// GetParsedAccountInfo fetches raw account info for pubkey.
func (c *Client) GetParsedAccountInfo(ctx context.Context, pubkey solana.PublicKey) (*rpc.Account, error) {
	const method = "getParsedAccountInfo"
	if err := c.admit(method); err != nil {
		return nil, err
	}
	defer c.gov.Record(method)
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, pubkey, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingJSONParsed,
		Commitment: c.commitment,
	})
	if err != nil {
		return nil, agenterrors.New(agenterrors.RpcError, "chain", err)
	}
	if out.Value == nil {
		return nil, agenterrors.New(agenterrors.RpcError, "chain", fmt.Errorf("account %s not found", pubkey))
	}
	return out.Value, nil
}

// SendTransaction submits a signed, encoded transaction and returns its
// signature.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	const method = "sendTransaction"
	if err := c.admit(method); err != nil {
		return solana.Signature{}, err
	}
	defer c.gov.Record(method)
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, agenterrors.New(agenterrors.RpcError, "chain", err)
	}
	return sig, nil
}

// ConfirmTransaction polls for confirmation of sig up to timeout, returning
// an error tagged RpcError on failure — per 4.M/§7, callers must not mutate
// local balance state on this error.
func (c *Client) ConfirmTransaction(ctx context.Context, sig solana.Signature, timeout time.Duration) error {
	const method = "getSignatureStatuses"
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := c.admit(method); err != nil {
			return err
		}
		out, err := c.rpc.GetSignatureStatuses(ctx, true, sig)
		c.gov.Record(method)
		if err != nil {
			return agenterrors.New(agenterrors.RpcError, "chain", err)
		}
		if len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return agenterrors.New(agenterrors.RpcError, "chain", fmt.Errorf("transaction failed on-chain: %v", st.Err))
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed || st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return agenterrors.New(agenterrors.RpcError, "chain", fmt.Errorf("confirmation timed out for %s", sig))
}
