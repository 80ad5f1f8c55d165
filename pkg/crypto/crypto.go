package crypto

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost factor applied to account passwords.
const DefaultCost = 10

// ErrPasswordMismatch is returned when a candidate does not match the stored hash.
var ErrPasswordMismatch = errors.New("crypto: password mismatch")

// PasswordHasher hashes and verifies passwords with a one-way function.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, hashed string) error
}

// BcryptHasher implements PasswordHasher with bcrypt.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a hasher using the supplied cost, falling back to DefaultCost when out of range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Cost reports the configured cost factor.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash returns a salted bcrypt hash of password.
func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return HashPassword(password, h.cost)
}

// Verify returns nil when password matches hashed and ErrPasswordMismatch otherwise.
func (h *BcryptHasher) Verify(ctx context.Context, password, hashed string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return err
}

// HashPassword returns a bcrypt hash of the supplied password.
func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares the hashed password with the plaintext candidate.
func VerifyPassword(hashedPassword, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)) == nil
}

// HashCost extracts the cost factor embedded in a bcrypt hash.
func HashCost(hashed string) (int, error) {
	return bcrypt.Cost([]byte(hashed))
}

// RandomBytes reads n bytes from source, defaulting to crypto/rand.
func RandomBytes(source io.Reader, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("crypto: invalid byte length %d", n)
	}
	if source == nil {
		source = rand.Reader
	}
	buffer := make([]byte, n)
	if _, err := io.ReadFull(source, buffer); err != nil {
		return nil, err
	}
	return buffer, nil
}

// GenerateHexToken returns n random bytes hex encoded (2n characters).
func GenerateHexToken(source io.Reader, n int) (string, error) {
	buffer, err := RandomBytes(source, n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	buffer, err := RandomBytes(nil, length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// HashToken returns the hex encoded SHA-256 digest of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
