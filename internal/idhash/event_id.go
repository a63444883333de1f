package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"file-nft-market/internal/domain"
)

// ComputeEventID computes a deterministic event id using SHA256.
// Formula: SHA256(seq|kind|record_id|seller|buyer|price|amount)
// Returns hex-encoded hash (64 characters).
func ComputeEventID(e domain.Event) string {
	data := fmt.Sprintf("%d|%s|%d|%s|%s|%d|%d",
		e.Seq,
		string(e.Kind),
		uint64(e.RecordID),
		string(e.Seller),
		string(e.Buyer),
		e.Price,
		e.Amount,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
