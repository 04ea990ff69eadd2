package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
)

// Digester fingerprints canonical SQL text. Implementations must be pure
// functions of their input.
type Digester interface {
	Digest(formatted string) string
}

// TiDBDigester is the TiDB statement digest: sha256, lower-case hex.
type TiDBDigester struct{}

// Digest implements Digester.
func (TiDBDigester) Digest(formatted string) string {
	return parser.DigestNormalized(formatted).String()
}

// SHA1Digester produces sha1 fingerprints, matching the ones written by
// earlier releases.
type SHA1Digester struct{}

// Digest implements Digester.
func (SHA1Digester) Digest(formatted string) string {
	sum := sha1.Sum([]byte(formatted))
	return hex.EncodeToString(sum[:])
}

// DigesterByName resolves "tidb" (alias "sha256") and "sha1".
// An empty name selects the TiDB digest.
func DigesterByName(name string) (Digester, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tidb", "sha256":
		return TiDBDigester{}, nil
	case "sha1":
		return SHA1Digester{}, nil
	default:
		return nil, fmt.Errorf("unsupported digest %q", name)
	}
}
