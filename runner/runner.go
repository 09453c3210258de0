package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/SpongeData-cz/gopst/config"
	"github.com/SpongeData-cz/gopst/filter"
	"github.com/SpongeData-cz/gopst/model"
	"github.com/SpongeData-cz/gopst/record"
	"github.com/SpongeData-cz/gopst/state"
	"github.com/SpongeData-cz/gopst/stats"
)

type StageFunc func(context.Context) error

// Runner wires the walk producer to the export consumer through a bridge
// applying the record filter, the type mask and the resume ledger.
type Runner struct {
	cfg       config.Config
	storeName string
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	records chan model.Envelope
	exports chan *record.Record
	events  chan stats.Event

	tracker state.Tracker
	filter  *filter.Filter

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeRecordsOnce sync.Once
	closeExportsOnce sync.Once
	closeEventsOnce  sync.Once
	since            time.Time
}

func New(cfg config.Config, storeName string, logger *slog.Logger) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())

	tracker, err := state.NewFileTracker(cfg.StateDir, !cfg.DryRun)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("state tracker: %w", err)
	}

	recFilter, err := filter.New(filter.Options{
		IncludeSubject: cfg.IncludeSubject,
		IncludeBody:    cfg.IncludeBody,
		ExcludeSubject: cfg.ExcludeSubject,
		ExcludeBody:    cfg.ExcludeBody,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("record filter: %w", err)
	}

	r := &Runner{
		cfg:       cfg,
		storeName: storeName,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		records:   make(chan model.Envelope, 32),
		exports:   make(chan *record.Record, 32),
		events:    make(chan stats.Event, 128),
		tracker:   tracker,
		filter:    recFilter,
	}

	r.AddStage("bridge", r.bridge)
	return r, nil
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) StoreName() string {
	return r.storeName
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) Tracker() state.Tracker {
	return r.tracker
}

func (r *Runner) RecordsWriter() chan<- model.Envelope {
	return r.records
}

func (r *Runner) CloseRecords() {
	r.closeRecordsOnce.Do(func() {
		close(r.records)
	})
}

func (r *Runner) Exports() <-chan *record.Record {
	return r.exports
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, r.events); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

func (r *Runner) Start() error {
	r.since = time.Now()

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	// the ledger buffers writes; losing them would redo work on resume
	if closer, ok := r.tracker.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			r.fail(fmt.Errorf("state tracker: %w", err))
		}
	}

	err := r.err
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// wantsKind applies the configured type mask. Structural records always
// pass so the folder layout of wanted records stays intact.
func (r *Runner) wantsKind(kind record.Kind) bool {
	switch kind {
	case record.KindMessageStore, record.KindFolder:
		return true
	case record.KindMessage:
		return r.cfg.Types.Email
	case record.KindAppointment:
		return r.cfg.Types.Appointment
	case record.KindJournal:
		return r.cfg.Types.Journal
	}
	return false
}

func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeExports()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.records:
			if !ok {
				return nil
			}

			if envelope.Err != nil {
				r.EmitEvent(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeError, Err: envelope.Err})
				r.fail(fmt.Errorf("walk envelope: %w", envelope.Err))
				continue
			}

			rec := envelope.Record
			id := model.ID(rec)
			r.EmitEvent(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeScanned, RecordID: id})

			if !r.wantsKind(rec.Kind) {
				r.EmitEvent(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeSkipped, RecordID: id, Detail: "type mask"})
				continue
			}

			if !r.filter.AllowsRecord(rec) {
				r.EmitEvent(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeSkipped, RecordID: id, Detail: "filter"})
				continue
			}

			if rec.Kind != record.KindMessageStore && rec.Kind != record.KindFolder {
				digest := model.Digest(r.storeName, rec)
				if r.tracker.AlreadyProcessed(digest) {
					r.EmitEvent(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeDuplicate, RecordID: id})
					continue
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.exports <- rec:
				r.EmitEvent(stats.Event{Stage: stats.StageWalk, Type: stats.EventTypeEnqueued, RecordID: id})
			}
		}
	}
}

func (r *Runner) closeExports() {
	r.closeExportsOnce.Do(func() {
		close(r.exports)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
