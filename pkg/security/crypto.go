package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"os/user"

	"golang.org/x/crypto/pbkdf2"
	"crypto/sha512"
)

const (
	pbkdf2Iterations = 100000
	keyLenBytes      = 32 // AES-256
	saltLenBytes     = 16
	gcmNonceBytes    = 12 // 96-bit IV
)

// machineIdentity returns (hostname, username), the two ambient inputs that
// make the derived key machine- and account-bound.
func machineIdentity() (string, string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", "", fmt.Errorf("resolve hostname: %w", err)
	}
	u, err := user.Current()
	if err != nil {
		return "", "", fmt.Errorf("resolve current user: %w", err)
	}
	return hostname, u.Username, nil
}

// deriveKey derives a 32-byte AES-256 key from (hostname, username, salt)
// via PBKDF2-HMAC-SHA512 with 100,000 iterations (spec §3, §4.11).
func deriveKey(salt []byte) ([]byte, error) {
	hostname, username, err := machineIdentity()
	if err != nil {
		return nil, err
	}
	passphrase := hostname + "|" + username
	return pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLenBytes, sha512.New), nil
}

// sealed is the result of one encryption: everything needed to later derive
// the same key and verify/decrypt, split the way the GCM tag naturally
// separates from the ciphertext.
type sealed struct {
	salt       []byte
	iv         []byte
	ciphertext []byte // includes the GCM tag, as cipher.AEAD.Seal appends it
}

// encrypt derives a fresh per-write key (new random salt) and seals
// plaintext under AES-256-GCM with a random 96-bit nonce.
func encrypt(plaintext []byte) (*sealed, error) {
	salt := make([]byte, saltLenBytes)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	key, err := deriveKey(salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	iv := make([]byte, gcmNonceBytes)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	ciphertext := gcm.Seal(nil, iv, plaintext, nil)
	return &sealed{salt: salt, iv: iv, ciphertext: ciphertext}, nil
}

// decrypt re-derives the key from the stored salt and opens the ciphertext.
// Any failure here — wrong machine, wrong user, corruption — surfaces as a
// plain error; its caller ReadSecure deletes the file and treats the
// value as absent.
func decrypt(s *sealed) ([]byte, error) {
	key, err := deriveKey(s.salt)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	if len(s.iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid iv length %d", len(s.iv))
	}
	plaintext, err := gcm.Open(nil, s.iv, s.ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	return plaintext, nil
}
