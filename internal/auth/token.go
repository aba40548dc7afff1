package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

// generateLoginToken creates a cryptographically secure random token for
// magic links. 32 bytes gives 256 bits of entropy in a URL-safe alphabet.
func generateLoginToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// generateLoginCode creates a fixed-length numeric code drawn uniformly
// from crypto/rand. Leading zeros are preserved.
func generateLoginCode(length int) (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// hashToken returns the hex SHA-256 digest of a token or code. Artifacts are
// stored hashed so a database leak does not expose usable login secrets;
// the digest is deterministic so lookups stay point queries.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
