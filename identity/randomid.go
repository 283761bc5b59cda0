package identity

import (
	cryptorand "crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

var (
	// idReader is used for random id generation. This declaration allows us to
	// replace it for testing.
	idReader = cryptorand.Reader
)

const (
	exchangeIDEntropyBytes = 8
	exchangeIDBase         = 36

	// 2^64 - 1 is "3w5e11264sgsf" in base36.
	exchangeIDLength = 13
)

// NewExchangeID generates an identifier for one protocol exchange.
func NewExchangeID() string {
	var p [exchangeIDEntropyBytes]byte

	if _, err := io.ReadFull(idReader, p[:]); err != nil {
		panic(fmt.Errorf("failed to read random bytes: %v", err))
	}

	id := (&big.Int{}).SetBytes(p[:]).Text(exchangeIDBase)
	return strings.Repeat("0", exchangeIDLength-len(id)) + id
}
