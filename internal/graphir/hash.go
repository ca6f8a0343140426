package graphir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix allows the
// algorithm to change without colliding with old digests.
const (
	DomainGraph    = "stagerun/graph/v1"
	DomainArtifact = "stagerun/artifact/v1"
)

// HashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest identifies a graph by its canonical JSON form, so the textual and
// binary encodings of one graph share a digest.
func Digest(g *Graph) (string, error) {
	canonical, err := MarshalCanonical(g.Value())
	if err != nil {
		return "", fmt.Errorf("graph digest: %w", err)
	}
	return HashWithDomain(DomainGraph, canonical), nil
}

// PayloadDigest identifies an arbitrary artifact payload.
func PayloadDigest(payload []byte) string {
	return HashWithDomain(DomainArtifact, payload)
}
