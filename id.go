package kertas

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// chunkNamespace scopes deterministic chunk identifiers. Fixed so that
// reprocessing the same document yields the same ids.
var chunkNamespace = uuid.MustParse("7b0c3c4e-2f1a-4f7d-9a6b-4e8f1d2c3b5a")

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParentChunkID derives a stable identifier from the document and the
// parent's ordinal. The same inputs always produce the same id.
func ParentChunkID(documentID string, ordinal int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s/parent/%d", documentID, ordinal))).String()
}

// ChildChunkID derives a stable identifier from the document, the parent
// ordinal, and the child's sequence number within the parent.
func ChildChunkID(documentID string, parentOrdinal, seq int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s/parent/%d/child/%d", documentID, parentOrdinal, seq))).String()
}

// ContentSHA returns the hex SHA-256 of chunk content, stored alongside
// each parent for change detection.
func ContentSHA(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NowUnix returns current time as Unix seconds.
func NowUnix() int64 {
	return time.Now().Unix()
}
