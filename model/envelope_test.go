package model

import (
	"testing"

	"github.com/SpongeData-cz/gopst/record"
	"github.com/SpongeData-cz/gopst/store"
)

func testRecord(path, name string, blockID uint64) *record.Record {
	return &record.Record{
		Kind:        record.KindMessage,
		LogicalPath: path,
		Name:        name,
		Item:        &store.Item{BlockID: blockID},
	}
}

func TestID(t *testing.T) {
	if got := ID(testRecord("Inbox", "Hi", 1)); got != "Inbox/Hi" {
		t.Errorf("ID() = %q, want Inbox/Hi", got)
	}
	if got := ID(testRecord("", "store.pst", 0)); got != "store.pst" {
		t.Errorf("ID() = %q, want bare name at the root", got)
	}
}

func TestDigest(t *testing.T) {
	rec := testRecord("Inbox", "Hi", 7)

	if Digest("a.pst", rec) != Digest("a.pst", rec) {
		t.Error("digest must be deterministic")
	}
	if Digest("a.pst", rec) == Digest("b.pst", rec) {
		t.Error("digest must depend on the store name")
	}
	if Digest("a.pst", rec) == Digest("a.pst", testRecord("Sent", "Hi", 7)) {
		t.Error("digest must depend on the logical path")
	}
	if Digest("a.pst", rec) == Digest("a.pst", testRecord("Inbox", "Hi", 8)) {
		t.Error("digest must depend on the block id")
	}
}
