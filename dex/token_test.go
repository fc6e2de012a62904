package dex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const wrappedSolMint = "So11111111111111111111111111111111111111112"

func TestParseTokenAcceptsValidMint(t *testing.T) {
	tok, err := ParseToken(wrappedSolMint)
	assert.NoError(t, err)
	assert.Equal(t, wrappedSolMint, tok.String())
}

func TestParseTokenRejectsBadBase58(t *testing.T) {
	_, err := ParseToken("not-base58-0OIl")
	assert.Error(t, err)
}

func TestParseTokenRejectsWrongLength(t *testing.T) {
	_, err := ParseToken("abc")
	assert.Error(t, err)
}

func TestTokenShortTruncates(t *testing.T) {
	tok, err := ParseToken(wrappedSolMint)
	assert.NoError(t, err)
	short := tok.Short()
	assert.Len(t, short, 11)
	assert.Contains(t, short, "...")
}
