package ledger

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenesisHash is the previous-hash value for sequence 1 of every chain:
// SHA-256 of the ASCII string "trackledger-genesis-v1". It is part of the
// public verification contract and must be identical in every implementation.
const GenesisHash = "51855891e9b4fddecfb217e6d53cecbe77f886641856ad531475a37bacef9981"

// truncatedHashLen is the prefix length exposed in public reports.
const truncatedHashLen = 16

// HashBytes returns the lowercase hex SHA-256 digest of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashEvent canonicalizes and hashes an event.
func HashEvent(e *Event) string {
	return HashBytes(Canonicalize(e))
}

// TruncateHash shortens a hex digest for public display. Full digests stay
// server-side; the prefix is enough for cross-referencing a published report.
func TruncateHash(h string) string {
	if len(h) <= truncatedHashLen {
		return h
	}
	return h[:truncatedHashLen]
}
