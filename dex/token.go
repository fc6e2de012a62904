// Package dex implements the Solana momentum paper-trading engine: tiered
// entries, slippage, trailing stops, a circuit breaker, a drawdown halt,
// and stop-loss cooldowns with price-based re-entry.
package dex

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Token wraps a Solana mint address. It stringifies and JSON-marshals as
// base58, the wire format every DEX provider and the admin API expect.
type Token struct {
	pubkey solana.PublicKey
}

// ParseToken validates addr as base58 and, if it decodes to 32 bytes, as a
// Solana public key. Addresses from aggregators occasionally carry
// non-pubkey placeholder strings (native SOL's "So111...112" mint, wrapped
// tokens); ParseToken accepts any valid base58 of the right length without
// requiring it to be a point on-curve.
func ParseToken(addr string) (Token, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return Token{}, fmt.Errorf("invalid base58 token address %q: %w", addr, err)
	}
	if len(raw) != solana.PublicKeyLength {
		return Token{}, fmt.Errorf("token address %q decodes to %d bytes, want %d", addr, len(raw), solana.PublicKeyLength)
	}
	return Token{pubkey: solana.PublicKeyFromBytes(raw)}, nil
}

func (t Token) String() string { return t.pubkey.String() }

func (t Token) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.pubkey.String() + `"`), nil
}

func (t *Token) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseToken(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Short renders a log-friendly truncated address, e.g. "7xKX...gAsU".
func (t Token) Short() string {
	s := t.pubkey.String()
	if len(s) <= 9 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}
