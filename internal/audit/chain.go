package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

// canonicalTimeFormat fixes the timestamp encoding used in the hash input.
// Logger.build stamps events at microsecond precision, so the encoded value
// is identical before and after a TIMESTAMPTZ storage round trip.
const canonicalTimeFormat = time.RFC3339Nano

// eventHash computes the HMAC-SHA256 of an event's canonical field tuple.
// The tuple covers the fields that identify what happened and where the
// event sits in the chain; payload fields are deliberately excluded so that
// redaction does not affect the hash.
func eventHash(secret []byte, e *Event) string {
	mac := hmac.New(sha256.New, secret)
	writeField(mac, e.ID)
	writeField(mac, e.Timestamp.UTC().Format(canonicalTimeFormat))
	writeField(mac, e.UserID)
	writeField(mac, e.Action)
	writeField(mac, e.Resource)
	writeField(mac, e.ResourceID)
	writeField(mac, e.SourceIP)
	writeField(mac, e.PreviousHash)
	return hex.EncodeToString(mac.Sum(nil))
}

// writeField writes one field followed by a separator that cannot appear in
// the hex-encoded previous hash, preventing ambiguous concatenations.
func writeField(w io.Writer, field string) {
	_, _ = io.WriteString(w, field)
	_, _ = w.Write([]byte{'|'})
}

// verifyChain replays the hash chain from a stored event sequence.
// It returns one human-readable error string per detected inconsistency:
// a stored hash that does not match recomputation (field tampering), or a
// PreviousHash that does not equal the prior event's stored hash (reordering
// or removal). Events are expected in insertion order.
func verifyChain(secret []byte, events []*Event) []string {
	var errs []string
	prev := ""
	for i, e := range events {
		if got := eventHash(secret, e); got != e.Hash {
			errs = append(errs, chainError(i, e.ID, "stored hash does not match recomputed hash"))
		}
		if e.PreviousHash != prev {
			errs = append(errs, chainError(i, e.ID, "previous hash does not match prior event"))
		}
		prev = e.Hash
	}
	return errs
}

func chainError(index int, id, msg string) string {
	return fmt.Sprintf("event %d (%s): %s", index, id, msg)
}
