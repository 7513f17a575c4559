package licensing

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const (
	keyChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	keyLength = 12

	DefaultKeyPrefix = "ZPOFES-"

	maxGenerateAttempts = 8
)

// GenerateKey returns prefix followed by keyLength random uppercase
// alphanumeric characters.
func GenerateKey(prefix string) (string, error) {
	var b strings.Builder
	b.Grow(len(prefix) + keyLength)
	b.WriteString(prefix)

	max := big.NewInt(int64(len(keyChars)))
	for i := 0; i < keyLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(keyChars[n.Int64()])
	}
	return b.String(), nil
}

// IsWellFormedKey checks the random suffix after prefix.
func IsWellFormedKey(key, prefix string) bool {
	suffix, ok := strings.CutPrefix(key, prefix)
	if !ok || len(suffix) != keyLength {
		return false
	}
	for _, c := range suffix {
		if !strings.ContainsRune(keyChars, c) {
			return false
		}
	}
	return true
}
