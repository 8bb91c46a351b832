// Package crypto implements server-side wallet signature verification and nonces.
package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignatureLen is the length of an [R || S || V] secp256k1 signature.
const SignatureLen = 65

// ErrBadSignature is returned when a signature does not recover to the claimed address.
var ErrBadSignature = errors.New("signature mismatch")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// Nonce returns a hex-encoded 16 byte random nonce.
func Nonce() (string, error) {
	b, err := RandBytes(16)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// PersonalHash returns the EIP-191 "personal_sign" digest of msg.
func PersonalHash(msg []byte) []byte {
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(msg))
	return ethcrypto.Keccak256([]byte(prefix), msg)
}

// Recover returns the address that produced a personal signature over msg.
// Both V encodings (0/1 and 27/28) are accepted.
func Recover(msg, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLen {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", SignatureLen, len(sig))
	}
	s := make([]byte, SignatureLen)
	copy(s, sig)
	if s[64] >= 27 {
		s[64] -= 27
	}
	pub, err := ethcrypto.SigToPub(PersonalHash(msg), s)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(*pub), nil
}

// VerifySignature checks that sig is addr's personal signature over msg.
func VerifySignature(addr common.Address, msg, sig []byte) error {
	got, err := Recover(msg, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if got != addr {
		return ErrBadSignature
	}
	return nil
}
