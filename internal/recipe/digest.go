// digest.go computes the canonical digest of a resolved recipe. The digest
// is stamped on baked images, letting `kiln list` and `kiln verify` tell
// whether two images came from semantically identical recipes.
package recipe

import (
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"
)

// Digest returns the canonical SHA-256 digest of the recipe.
//
// The canonical encoding is the JSON serialization of the resolved recipe:
// struct fields in declaration order, map keys sorted by encoding/json.
// Call ApplyDefaults first so two recipes that differ only in spelled-out
// defaults hash identically. UnknownKeys are excluded, so unrecognized
// fields never influence the digest.
func (r *Recipe) Digest() (digest.Digest, error) {
	canonical, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize recipe: %w", err)
	}
	return digest.FromBytes(canonical), nil
}
