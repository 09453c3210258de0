package store

import (
	"errors"
	"fmt"
)

// Tree is a fully materialized in-memory Store. It backs tests and
// synthetic fixtures, and is the target the pstfile adapter loads into.
type Tree struct {
	name   string
	root   *Node
	top    *Node
	items  map[uint64]*Item
	blobs  map[uint64][]byte
	nextID uint64
	closed bool

	// RTFDecompressor expands compressed rich-text bodies. Left nil, RTF
	// bodies are reported as unavailable.
	RTFDecompressor func([]byte) ([]byte, error)
}

// NewTree returns an empty in-memory store with the given source name.
func NewTree(name string) *Tree {
	return &Tree{
		name:   name,
		items:  make(map[uint64]*Item),
		blobs:  make(map[uint64][]byte),
		nextID: 1,
	}
}

// AddNode appends a node under parent (nil parent means tree head) and
// binds it to item. A nil item models an unresolvable descriptor.
func (t *Tree) AddNode(parent *Node, item *Item) *Node {
	n := &Node{ID: t.nextID, HasDescriptor: true}
	t.nextID++
	if item != nil {
		t.items[n.ID] = item
	}
	t.attach(parent, n)
	return n
}

// AddBareNode appends a node whose descriptor is absent; walkers skip it.
func (t *Tree) AddBareNode(parent *Node) *Node {
	n := &Node{ID: t.nextID}
	t.nextID++
	t.attach(parent, n)
	return n
}

func (t *Tree) attach(parent *Node, n *Node) {
	if parent == nil {
		if t.root == nil {
			t.root = n
			return
		}
		last := t.root
		for last.Next != nil {
			last = last.Next
		}
		last.Next = n
		return
	}
	if parent.Child == nil {
		parent.Child = n
		return
	}
	last := parent.Child
	for last.Next != nil {
		last = last.Next
	}
	last.Next = n
}

// SetTopOfFolders marks the top-level folder node beneath the root.
func (t *Tree) SetTopOfFolders(n *Node) { t.top = n }

// PutBlob registers attachment data resolvable by id.
func (t *Tree) PutBlob(id uint64, data []byte) { t.blobs[id] = data }

func (t *Tree) Name() string { return t.name }

func (t *Tree) Root() *Node { return t.root }

func (t *Tree) TopOfFolders(root *Item) *Node { return t.top }

func (t *Tree) ParseItem(n *Node) (*Item, error) {
	if n == nil || !n.HasDescriptor {
		return nil, nil
	}
	return t.items[n.ID], nil
}

func (t *Tree) ResolveBlob(id uint64) ([]byte, error) {
	data, ok := t.blobs[id]
	if !ok {
		return nil, fmt.Errorf("store: no blob with id %#x", id)
	}
	return data, nil
}

func (t *Tree) ParseEmbedded(att *Attachment) (*Item, error) {
	if att.EmbeddedItem == nil {
		return nil, nil
	}
	return att.EmbeddedItem, nil
}

func (t *Tree) DecompressRTF(data []byte) ([]byte, error) {
	if t.RTFDecompressor == nil {
		return nil, errors.New("store: no rtf decompressor configured")
	}
	return t.RTFDecompressor(data)
}

func (t *Tree) Close() error {
	if t.closed {
		return errors.New("store: already closed")
	}
	t.closed = true
	return nil
}
