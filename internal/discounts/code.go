package discounts

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

const (
	codeAlphabet     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeSuffixLength = 8
)

// CodeGenerator produces a new human-readable discount code.
type CodeGenerator func() (string, error)

// RandomCode returns a generator for <PREFIX>-<8 upper alphanumerics>.
// Codes are not checked for uniqueness.
func RandomCode(prefix string) CodeGenerator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	alphabetSize := big.NewInt(int64(len(codeAlphabet)))
	return func() (string, error) {
		var b strings.Builder
		b.Grow(len(prefix) + 1 + codeSuffixLength)
		b.WriteString(prefix)
		b.WriteByte('-')
		for i := 0; i < codeSuffixLength; i++ {
			n, err := rand.Int(rand.Reader, alphabetSize)
			if err != nil {
				return "", fmt.Errorf("reading random code: %w", err)
			}
			b.WriteByte(codeAlphabet[n.Int64()])
		}
		return b.String(), nil
	}
}
