package types

import (
	"fmt"

	"github.com/mr-tron/base58"
)

const SignatureSize = 64

// Signature 交易签名，signatures[0] 即交易哈希
type Signature [SignatureSize]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func SignatureFromBase58(str string) (Signature, error) {
	var sig Signature
	data, err := base58.Decode(str)
	if err != nil {
		return sig, fmt.Errorf("failed to decode base58 signature %q: %w", str, err)
	}
	if len(data) != SignatureSize {
		return sig, fmt.Errorf("invalid signature length: got %d, want %d", len(data), SignatureSize)
	}
	copy(sig[:], data)
	return sig, nil
}
