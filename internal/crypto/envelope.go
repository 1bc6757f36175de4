// Package crypto implements the vault's per-secret field encryption.
//
// Format, matching the master-key/salt/iteration scheme of the original
// vault: base64(salt ‖ iterations_be32 ‖ base64(ciphertext)), where
// ciphertext is AES-GCM-sealed under a key derived from the master key and
// salt via PBKDF2-HMAC-SHA256. Decryption failures (wrong key, corrupted
// token) return an empty string rather than an error, matching the
// original's InvalidToken handling.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// DefaultIterations is the PBKDF2 iteration count used when a vault does
// not override it.
const DefaultIterations = 100_000

const saltSize = 16

func deriveKey(masterKey []byte, salt []byte, iterations int) []byte {
	return pbkdf2.Key(masterKey, salt, iterations, 32, sha256.New)
}

// Encrypt derives a fresh salt, derives a key from masterKey and that salt
// over iterations rounds, seals plaintext with AES-GCM, and returns the
// base64-wrapped envelope. An empty masterKey is a caller error.
func Encrypt(masterKey []byte, plaintext string, iterations int) (string, error) {
	if len(masterKey) == 0 {
		return "", fmt.Errorf("crypto: master key is required")
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto: read salt: %w", err)
	}

	key := deriveKey(masterKey, salt, iterations)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("crypto: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("crypto: new gcm: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: read nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	innerToken := base64.URLEncoding.EncodeToString(sealed)

	var iterBuf [4]byte
	binary.BigEndian.PutUint32(iterBuf[:], uint32(iterations))

	outer := make([]byte, 0, saltSize+4+len(innerToken))
	outer = append(outer, salt...)
	outer = append(outer, iterBuf[:]...)
	outer = append(outer, innerToken...)

	return base64.URLEncoding.EncodeToString(outer), nil
}

// Decrypt reverses Encrypt. Any failure (malformed envelope, wrong master
// key, tampered ciphertext) yields an empty string: the vault never raises on
// decrypt, it reports an empty secret.
func Decrypt(masterKey []byte, envelope string) string {
	if envelope == "" {
		return ""
	}

	outer, err := base64.URLEncoding.DecodeString(envelope)
	if err != nil || len(outer) < saltSize+4 {
		return ""
	}

	salt := outer[:saltSize]
	iterations := int(binary.BigEndian.Uint32(outer[saltSize : saltSize+4]))
	innerToken := outer[saltSize+4:]

	sealed, err := base64.URLEncoding.DecodeString(string(innerToken))
	if err != nil {
		return ""
	}

	key := deriveKey(masterKey, salt, iterations)
	block, err := aes.NewCipher(key)
	if err != nil {
		return ""
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}
	if len(sealed) < aead.NonceSize() {
		return ""
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ""
	}
	return string(plaintext)
}
