package utils

import (
    "crypto/cipher"
    "crypto/rand"
    "encoding/base64"
    "errors"
    "fmt"
    "io"

    "golang.org/x/crypto/chacha20poly1305"
)

// ErrDecryptFailed is returned for any ciphertext that cannot be opened:
// bad encoding, truncation, unknown version, tampering or a foreign key.
var ErrDecryptFailed = errors.New("decryption failed")

// DecryptFailedPlaceholder is what read paths show in place of a message
// body that failed to decrypt.
const DecryptFailedPlaceholder = "decryption failed"

// codecVersion prefixes every sealed body and is authenticated as AAD.
const codecVersion byte = 0x01

const sealedOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// MessageCodec encrypts chat bodies at rest with XChaCha20-Poly1305 under a
// single process-wide key.  Output layout before base64:
//
//	[version 1B][nonce 24B][ciphertext+tag]
type MessageCodec struct {
    aead cipher.AEAD
}

// NewMessageCodec builds a codec from a 32 byte key.
func NewMessageCodec(key []byte) (*MessageCodec, error) {
    aead, err := chacha20poly1305.NewX(key)
    if err != nil {
        return nil, fmt.Errorf("message codec: %w", err)
    }
    return &MessageCodec{aead: aead}, nil
}

// Encrypt seals plaintext and returns it base64 encoded for a TEXT column.
func (c *MessageCodec) Encrypt(plaintext string) (string, error) {
    var nonce [chacha20poly1305.NonceSizeX]byte
    if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
        return "", fmt.Errorf("generating nonce: %w", err)
    }
    out := make([]byte, 1+len(nonce), sealedOverhead+len(plaintext))
    out[0] = codecVersion
    copy(out[1:], nonce[:])
    out = c.aead.Seal(out, nonce[:], []byte(plaintext), []byte{codecVersion})
    return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.  Every failure is reported as ErrDecryptFailed.
func (c *MessageCodec) Decrypt(ciphertext string) (string, error) {
    blob, err := base64.StdEncoding.DecodeString(ciphertext)
    if err != nil {
        return "", fmt.Errorf("%w: bad encoding", ErrDecryptFailed)
    }
    if len(blob) < sealedOverhead {
        return "", fmt.Errorf("%w: %d bytes is too short", ErrDecryptFailed, len(blob))
    }
    if blob[0] != codecVersion {
        return "", fmt.Errorf("%w: unsupported version %d", ErrDecryptFailed, blob[0])
    }
    nonce := blob[1 : 1+chacha20poly1305.NonceSizeX]
    plain, err := c.aead.Open(nil, nonce, blob[1+chacha20poly1305.NonceSizeX:], blob[:1])
    if err != nil {
        return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
    }
    return string(plain), nil
}

// DecryptOr returns the plaintext, or fallback when decryption fails.
func (c *MessageCodec) DecryptOr(ciphertext, fallback string) string {
    plain, err := c.Decrypt(ciphertext)
    if err != nil {
        return fallback
    }
    return plain
}
