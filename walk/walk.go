// Package walk enumerates the records of a message store by walking its
// descriptor tree depth-first.
package walk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/SpongeData-cz/gopst/model"
	"github.com/SpongeData-cz/gopst/record"
	"github.com/SpongeData-cz/gopst/runner"
	"github.com/SpongeData-cz/gopst/store"
)

var (
	// ErrRootNotFound is returned when the store has no top-of-folders
	// node below its root item.
	ErrRootNotFound = errors.New("walk: top of personal folders not found")

	// ErrDuplicateMessageStore is returned when a second message-store
	// item appears anywhere in the tree. The store is structurally broken
	// and the whole walk aborts.
	ErrDuplicateMessageStore = errors.New("walk: duplicate message store")
)

// Enumerator holds the records of one completed walk in depth-first
// pre-order. The first record is always the message-store root marker.
type Enumerator struct {
	storeName string
	records   []*record.Record
}

func (e *Enumerator) StoreName() string { return e.storeName }

func (e *Enumerator) Len() int { return len(e.records) }

// Records returns the backing slice; callers must not modify it.
func (e *Enumerator) Records() []*record.Record { return e.records }

type walker struct {
	st     store.Store
	logger *slog.Logger
	enum   *Enumerator
}

// Build walks the whole store and returns its record enumeration. The
// walk is one synchronous pass holding the store handle; duplicate
// message stores abort it, unresolvable nodes are logged and skipped.
func Build(st store.Store, logger *slog.Logger) (*Enumerator, error) {
	if logger == nil {
		logger = slog.Default()
	}

	root := st.Root()
	rootItem, err := st.ParseItem(root)
	if err != nil {
		return nil, fmt.Errorf("walk: parsing root item: %w", err)
	}
	if rootItem == nil || rootItem.MessageStore == nil {
		return nil, fmt.Errorf("walk: root of %q is not a message store", st.Name())
	}
	if rootItem.DisplayName == "" {
		rootItem.DisplayName = filepath.Base(st.Name())
	}

	rootRec, ok := record.Classify(rootItem, st)
	if !ok {
		return nil, fmt.Errorf("walk: root of %q did not classify", st.Name())
	}

	top := st.TopOfFolders(rootItem)
	if top == nil {
		return nil, ErrRootNotFound
	}

	w := &walker{
		st:     st,
		logger: logger,
		enum: &Enumerator{
			storeName: st.Name(),
			records:   []*record.Record{rootRec},
		},
	}
	if err := w.folder(top.Child, ""); err != nil {
		return nil, err
	}

	logger.Debug("walk complete", "store", st.Name(), "records", w.enum.Len())
	return w.enum, nil
}

// folder walks one sibling chain. path is the logical path of the chain's
// parent folder, "" at the top so paths never start with a separator.
func (w *walker) folder(n *store.Node, path string) error {
	skipped := 0
	for ; n != nil; n = n.Next {
		if !n.HasDescriptor {
			w.logger.Debug("skipping node without descriptor", "node", n.ID, "path", path)
			skipped++
			continue
		}

		item, err := w.st.ParseItem(n)
		if err != nil {
			w.logger.Warn("skipping unreadable item", "node", n.ID, "path", path, "err", err)
			skipped++
			continue
		}
		if item == nil {
			w.logger.Debug("skipping unresolvable node", "node", n.ID, "path", path)
			skipped++
			continue
		}

		if item.MessageStore != nil {
			return fmt.Errorf("%w: node %d under %q", ErrDuplicateMessageStore, n.ID, path)
		}

		rec, ok := record.Classify(item, w.st)
		if !ok {
			skipped++
			continue
		}

		if rec.Kind == record.KindFolder {
			if n.Child == nil {
				skipped++
				continue
			}
			rec.LogicalPath = path
			w.enum.records = append(w.enum.records, rec)
			sub := rec.Name
			if path != "" {
				sub = path + "/" + rec.Name
			}
			if err := w.folder(n.Child, sub); err != nil {
				return err
			}
			continue
		}

		rec.LogicalPath = path
		w.enum.records = append(w.enum.records, rec)
	}

	if skipped > 0 {
		w.logger.Debug("finished folder", "path", path, "skipped", skipped)
	}
	return nil
}

// Producer streams an enumeration into the pipeline.
type Producer struct {
	enum   *Enumerator
	runner *runner.Runner
	logger *slog.Logger
}

func NewProducer(enum *Enumerator, r *runner.Runner, logger *slog.Logger) *Producer {
	producer := &Producer{enum: enum, runner: r, logger: logger}
	r.AddStage("walk", producer.run)
	return producer
}

func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseRecords()
	out := p.runner.RecordsWriter()
	for _, rec := range p.enum.Records() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case out <- model.Envelope{Record: rec}:
		}
	}
	return nil
}
