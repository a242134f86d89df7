package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Iterations is the PBKDF2 cost applied to new hashes. Verification reads the
// cost out of the stored value, so raising this does not break existing rows.
const (
	Iterations = 100_000
	saltLen    = 16
	keyLen     = 32
)

// HashPassword derives a PBKDF2-SHA256 key from the password and encodes it as
// "iterations:salt_hex:key_hex".
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := pbkdf2.Key([]byte(password), salt, Iterations, keyLen, sha256.New)
	return fmt.Sprintf("%d:%s:%s", Iterations, hex.EncodeToString(salt), hex.EncodeToString(key)), nil
}

// CheckPassword reports whether the password matches the stored hash. Any
// malformed stored value fails closed.
func CheckPassword(stored, password string) bool {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return false
	}
	iter, err := strconv.Atoi(parts[0])
	if err != nil || iter <= 0 {
		return false
	}
	salt, err := hex.DecodeString(parts[1])
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := hex.DecodeString(parts[2])
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, iter, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
