// Package clientcrypto contains client-side primitives: the passphrase-sealed wallet key file
// and personal-sign login signatures.
package clientcrypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/and161185/avamon/internal/crypto"
)

// Params
const (
	KeKLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// keyFileMagic prefixes sealed key files and is bound as AAD.
var keyFileMagic = []byte("AVK1")

// ErrBadKeyFile is returned for truncated or foreign key files.
var ErrBadKeyFile = errors.New("not an avamon key file")

func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKEK derives a KEK from passphrase and salt using Argon2id.
func DeriveKEK(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeKLen)
}

// GenerateKey creates a new secp256k1 wallet key.
func GenerateKey() (*ecdsa.PrivateKey, error) { return ethcrypto.GenerateKey() }

// Address returns the wallet address of key.
func Address(key *ecdsa.PrivateKey) common.Address { return ethcrypto.PubkeyToAddress(key.PublicKey) }

// SealKey encrypts the private key with a passphrase-derived KEK using XChaCha20-Poly1305.
// Layout: magic || salt || nonce || ciphertext.
func SealKey(passphrase []byte, key *ecdsa.PrivateKey) ([]byte, error) {
	salt, err := Rand(SaltLen)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(DeriveKEK(passphrase, salt))
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	raw := ethcrypto.FromECDSA(key)
	out := make([]byte, 0, len(keyFileMagic)+SaltLen+len(nonce)+len(raw)+aead.Overhead())
	out = append(out, keyFileMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, raw, keyFileMagic)...)
	return out, nil
}

// OpenKey decrypts a sealed key file.
func OpenKey(passphrase, blob []byte) (*ecdsa.PrivateKey, error) {
	head := len(keyFileMagic) + SaltLen + chacha20poly1305.NonceSizeX
	if len(blob) < head || !bytes.Equal(blob[:len(keyFileMagic)], keyFileMagic) {
		return nil, ErrBadKeyFile
	}
	salt := blob[len(keyFileMagic) : len(keyFileMagic)+SaltLen]
	nonce := blob[len(keyFileMagic)+SaltLen : head]
	aead, err := chacha20poly1305.NewX(DeriveKEK(passphrase, salt))
	if err != nil {
		return nil, err
	}
	raw, err := aead.Open(nil, nonce, blob[head:], keyFileMagic)
	if err != nil {
		return nil, fmt.Errorf("open key file: %w", err)
	}
	return ethcrypto.ToECDSA(raw)
}

// SignPersonal signs msg the way wallets do for personal_sign (V in {27, 28}).
func SignPersonal(key *ecdsa.PrivateKey, msg []byte) ([]byte, error) {
	sig, err := ethcrypto.Sign(crypto.PersonalHash(msg), key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
