package codephrase

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// secureIndex returns a cryptographically secure random index in [0, n).
func secureIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("codephrase: empty word list")
	}
	idx, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(idx.Int64()), nil
}
