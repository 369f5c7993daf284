package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// The version suffix leaves room for changing the algorithm later.
const (
	DomainRevision = "revgraph/revision/v1"
	DomainMessage  = "revgraph/message/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// RevisionHash computes the content hash of a revision.
// The Hash field itself is not part of the input.
func RevisionHash(r Revision) (string, error) {
	canonical, err := MarshalCanonical(revisionObject(r))
	if err != nil {
		return "", fmt.Errorf("RevisionHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRevision, canonical), nil
}

// MessageID computes a stable identifier for an encoded wire message.
func MessageID(encoded []byte) string {
	return hashWithDomain(DomainMessage, encoded)[:32]
}

func revisionObject(r Revision) Object {
	changes := make(Array, len(r.Changes))
	for i, c := range r.Changes {
		changes[i] = changeObject(c)
	}
	return Object{
		"number":  Int(r.Number),
		"parent":  Int(r.Parent),
		"kind":    String(r.Kind),
		"target":  Int(r.Target),
		"origin":  String(r.Origin),
		"changes": changes,
	}
}

func changeObject(c EntityChange) Object {
	obj := Object{
		"entity":          String(c.Entity),
		"composer":        String(c.Composer),
		"former_composer": String(c.FormerComposer),
	}
	if len(c.Before) > 0 {
		obj["before"] = c.Before
	}
	if len(c.After) > 0 {
		obj["after"] = c.After
	}
	return obj
}
