package domain

import (
	"errors"
	"strconv"
)

// Token is the opaque per-stream credential embedded in stream URLs and
// button payloads. It packs the backing message identifier together with a
// per-session partial token so the gateway can recompute it from the URL
// path alone.
type Token uint64

const (
	partialTokenBits = 32
	maxMessageID     = int64(1)<<31 - 1
)

var ErrTokenDomain = errors.New("token input out of domain")

// EncodeToken packs a message identifier and a partial token into a single
// Token. The mapping is a bijection over 0 < messageID <= 2^31-1 and any
// 32-bit partial token.
func EncodeToken(messageID int64, partial uint32) (Token, error) {
	if messageID <= 0 || messageID > maxMessageID {
		return 0, ErrTokenDomain
	}
	return Token(uint64(messageID)<<partialTokenBits | uint64(partial)), nil
}

// DecodeToken reverses EncodeToken.
func DecodeToken(t Token) (messageID int64, partial uint32, err error) {
	messageID = int64(t >> partialTokenBits)
	if messageID <= 0 || messageID > maxMessageID {
		return 0, 0, ErrTokenDomain
	}
	return messageID, uint32(t & (1<<partialTokenBits - 1)), nil
}

// MessageID returns the backing message identifier without validating the
// partial half; callers that need validation use DecodeToken.
func (t Token) MessageID() int64 {
	return int64(t >> partialTokenBits)
}

// Partial returns the per-session random half of the token.
func (t Token) Partial() uint32 {
	return uint32(t & (1<<partialTokenBits - 1))
}

func (t Token) String() string {
	return strconv.FormatUint(uint64(t), 10)
}

// ParseToken parses the decimal form produced by String.
func ParseToken(raw string) (Token, error) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ErrTokenDomain
	}
	if _, _, err := DecodeToken(Token(v)); err != nil {
		return 0, err
	}
	return Token(v), nil
}
