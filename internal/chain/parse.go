package chain

import (
	"encoding/json"
	"strconv"
)

// parsedTokenAccountJSON mirrors the subset of the JSON-parsed SPL
// token-account encoding this agent consumes.
type parsedTokenAccountJSON struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			TokenAmount struct {
				Amount   string `json:"amount"`
				Decimals uint8  `json:"decimals"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

func extractParsedTokenAccount(raw json.RawMessage) (TokenAccount, bool) {
	if len(raw) == 0 {
		return TokenAccount{}, false
	}
	var p parsedTokenAccountJSON
	if err := json.Unmarshal(raw, &p); err != nil {
		return TokenAccount{}, false
	}
	amount, err := strconv.ParseUint(p.Parsed.Info.TokenAmount.Amount, 10, 64)
	if err != nil {
		return TokenAccount{}, false
	}
	return TokenAccount{
		Mint:     p.Parsed.Info.Mint,
		Amount:   amount,
		Decimals: p.Parsed.Info.TokenAmount.Decimals,
	}, true
}
