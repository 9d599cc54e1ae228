package search

import (
	"encoding/base64"
	"unicode/utf8"
)

// ContinuationTokenParam is the reserved query key carrying the page token.
const ContinuationTokenParam = "ct"

// EncodeContinuationToken wraps an opaque token for transport. Clients echo
// the encoded form back verbatim on the next page request.
func EncodeContinuationToken(token string) string {
	return base64.StdEncoding.EncodeToString([]byte(token))
}

// DecodeContinuationToken reverses EncodeContinuationToken. Input that is
// not base64, or that does not decode to valid UTF-8, is a client error.
func DecodeContinuationToken(encoded string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", BadRequestf("continuation token is not valid: %v", err)
	}
	if !utf8.Valid(raw) {
		return "", BadRequestf("continuation token is not valid: payload is not UTF-8")
	}
	return string(raw), nil
}
