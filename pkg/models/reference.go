package models

import (
	"fmt"
	"strings"
	"time"
)

// ReferenceMarker is the literal trailer marker used to embed the bank
// reference in an exported memo. The marker is matched case-sensitively;
// changing it would break duplicate detection against every previously
// exported transaction.
const ReferenceMarker = "Ref: "

// AppendReference appends the reference trailer to a memo, e.g.
// "Groceries" -> "Groceries, Ref: REF123".
func AppendReference(memo, ref string) string {
	if ref == "" {
		return memo
	}
	if memo == "" {
		return ReferenceMarker + ref
	}
	return memo + ", " + ReferenceMarker + ref
}

// ExtractReference recovers the reference from a memo carrying the
// trailer, or "" when no marker is present. The last occurrence wins so a
// memo that itself mentions "Ref: " earlier in free text still resolves
// to the appended trailer.
func ExtractReference(memo string) string {
	idx := strings.LastIndex(memo, ReferenceMarker)
	if idx < 0 {
		return ""
	}
	return strings.TrimSpace(memo[idx+len(ReferenceMarker):])
}

// ImportID derives the deterministic idempotency key sent with every
// exported transaction. Format: "CS:<bank transaction ID>:<booking date>".
// Identical inputs always yield the identical key, and distinct
// (ID, booking date) pairs can never collide because both parts are
// embedded verbatim.
func ImportID(txID string, bookedAt time.Time) string {
	return fmt.Sprintf("CS:%s:%s", txID, bookedAt.Format("2006-01-02"))
}
