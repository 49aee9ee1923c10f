package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"math/big"
)

const opaqueTokenBytes = 48

// NewOpaqueToken returns a 48-byte random value encoded as unpadded
// base64url, used as the wire form of refresh tokens.
func NewOpaqueToken() (string, error) {
	var raw [opaqueTokenBytes]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// NewNumericCode returns a uniformly random numeric code of the given
// digit count, zero-padded on the left.
func NewNumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("numeric code digits must be between 4 and 10")
	}

	limit := big.NewInt(1)
	for i := 0; i < digits; i++ {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}

	code := n.String()
	for len(code) < digits {
		code = "0" + code
	}
	return code, nil
}
