// Package envelope encrypts individual sensitive note fields with a key
// derived from the owner's identity.
//
// The key is PBKDF2-SHA256 over subject + ":" + secret with an
// application-wide salt. Anyone holding the secret and a user's subject can
// rebuild that user's key; the scheme keeps note text out of the datastore in
// clear, nothing more.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version is written into every sealed field.
	Version = 1

	KeySize          = 32
	NonceSize        = 12
	MinIterations    = 100_000
	DefaultIteration = MinIterations
)

var (
	ErrEncryption = errors.New("encryption failure")
	ErrDecryption = errors.New("decryption failure")

	ErrKeyCleared = fmt.Errorf("%w: key material cleared", ErrEncryption)
)

// FieldError reports a failure on one sensitive field of one note.
type FieldError struct {
	NoteID string
	Field  string
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("note %s field %s: %v", e.NoteID, e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Params are the application-wide derivation inputs.
type Params struct {
	Secret     string
	Salt       string
	Iterations int
}

// DeriveKey returns the 256-bit key for subject.
func DeriveKey(subject string, p Params) ([]byte, error) {
	if subject == "" {
		return nil, fmt.Errorf("%w: empty identity subject", ErrEncryption)
	}
	if p.Iterations <= 0 {
		return nil, fmt.Errorf("%w: invalid iteration count %d", ErrEncryption, p.Iterations)
	}
	if p.Salt == "" {
		return nil, fmt.Errorf("%w: empty salt", ErrEncryption)
	}

	password := []byte(subject + ":" + p.Secret)
	return pbkdf2.Key(password, []byte(p.Salt), p.Iterations, KeySize, sha256.New), nil
}

// Envelope seals and opens fields for a single user. It is safe for
// concurrent use until Clear is called.
type Envelope struct {
	mu   sync.RWMutex
	key  []byte
	aead cipher.AEAD
}

func New(subject string, p Params) (*Envelope, error) {
	key, err := DeriveKey(subject, p)
	if err != nil {
		return nil, err
	}
	return NewWithKey(key)
}

// NewWithKey takes ownership of key; Clear zeroes it.
func NewWithKey(key []byte) (*Envelope, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}
	return &Envelope{key: key, aead: aead}, nil
}

// Encrypt seals plaintext. The empty string is returned as a plain field.
func (e *Envelope) Encrypt(plaintext string) (Field, error) {
	if plaintext == "" {
		return Plain(""), nil
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.aead == nil {
		return Field{}, ErrKeyCleared
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Field{}, fmt.Errorf("%w: nonce: %v", ErrEncryption, err)
	}

	ciphertext := e.aead.Seal(nil, nonce, []byte(plaintext), nil)

	return Field{Sealed: &Sealed{
		Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
		IV:        base64.StdEncoding.EncodeToString(nonce),
		Version:   Version,
	}}, nil
}

// Decrypt opens f. Plain fields that do not look encrypted are legacy
// values and come back unchanged.
func (e *Envelope) Decrypt(f Field) (string, error) {
	sealed := f.Sealed
	if sealed == nil {
		if !looksSealed(f.Text) {
			return f.Text, nil
		}
		parsed, err := ParseLenient(f.Text)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrDecryption, err)
		}
		sealed = parsed
	}

	return e.open(sealed)
}

func (e *Envelope) open(s *Sealed) (string, error) {
	if s.Version != 0 && s.Version != Version {
		return "", fmt.Errorf("%w: unsupported version %d", ErrDecryption, s.Version)
	}

	nonce, err := base64.StdEncoding.DecodeString(s.IV)
	if err != nil {
		return "", fmt.Errorf("%w: iv: %v", ErrDecryption, err)
	}
	if len(nonce) != NonceSize {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrDecryption, NonceSize, len(nonce))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(s.Encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: ciphertext: %v", ErrDecryption, err)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.aead == nil {
		return "", ErrKeyCleared
	}

	plaintext, err := e.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}

// Clear zeroes the key. Every later Encrypt or Decrypt of sealed data fails
// with ErrKeyCleared.
func (e *Envelope) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.key {
		e.key[i] = 0
	}
	e.key = nil
	e.aead = nil
}

func (e *Envelope) Cleared() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.aead == nil
}
