// Package fingerprint derives content-addressed version tags.
//
// The tag is the SHA-256 of a canonical JSON encoding: the document is
// normalized into generic JSON form first, so encoding/json's sorted map keys
// make the result independent of key insertion order at every nesting level.
// Two structurally equal documents always hash to the same token; any change
// in value, type or key set changes it.
package fingerprint

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"planhub/internal/plan/models"
)

// ErrEncoding marks input that cannot be serialized to JSON.
var ErrEncoding = errors.New("document not encodable")

// Compute returns the opaque version tag for a document.
func Compute(doc map[string]any) (string, error) {
	canonical, err := canonicalize(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return base64.RawURLEncoding.EncodeToString(sum[:]), nil
}

// ComputeAggregate fingerprints a plan aggregate. The embedded versionTag is
// excluded from the hashed content so a tag never feeds its own derivation
// and a no-op rewrite keeps the same tag.
func ComputeAggregate(p *models.Plan) (string, error) {
	stripped := p.Clone()
	stripped.VersionTag = ""
	m, err := stripped.AsMap()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return Compute(m)
}

// canonicalize round-trips the document through generic JSON so that every
// object is a map with deterministic (sorted) key order when re-encoded.
func canonicalize(doc any) ([]byte, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return canonical, nil
}

// Equal reports byte-exact tag equality. Tags are opaque and case-sensitive;
// no normalization is applied.
func Equal(a, b string) bool { return a == b }
