package model

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/SpongeData-cz/gopst/record"
)

// Envelope wraps a classified record alongside an optional error
// encountered while enumerating.
type Envelope struct {
	Record *record.Record
	Err    error
}

// Digest identifies a record across runs for resume support. It covers the
// store name, the logical path and the node's block id, so re-running the
// same export skips records already written.
func Digest(storeName string, rec *record.Record) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s\x00%s\x00%s\x00%#x",
		storeName, rec.LogicalPath, rec.Name, rec.Item.BlockID))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// ID is the human-readable record identity used in events and logs.
func ID(rec *record.Record) string {
	if rec.LogicalPath == "" {
		return rec.Name
	}
	return rec.LogicalPath + "/" + rec.Name
}
