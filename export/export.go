// Package export writes classified records to disk in the configured
// layout: per-folder mbox files (normal, kmail) or one file per record in
// a directory tree (recurse).
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	mboxlib "github.com/emersion/go-mbox"

	"github.com/SpongeData-cz/gopst/eml"
	"github.com/SpongeData-cz/gopst/model"
	"github.com/SpongeData-cz/gopst/record"
	"github.com/SpongeData-cz/gopst/runner"
	"github.com/SpongeData-cz/gopst/state"
	"github.com/SpongeData-cz/gopst/stats"
)

const fallbackMboxName = "messages"

// Options parameterizes the export consumer.
type Options struct {
	OutputDir    string
	Mode         record.Mode
	DryRun       bool
	EmailOptions eml.Options
}

// Exporter consumes records from the pipeline and writes them out. Errors
// writing one record are reported as events and do not stop the run.
type Exporter struct {
	opts    Options
	runner  *runner.Runner
	tracker state.Tracker
	exports <-chan *record.Record
	logger  *slog.Logger

	mboxes map[string]*folderMbox
	seq    map[string]int
}

type folderMbox struct {
	file   *os.File
	writer *mboxlib.Writer
}

func NewExporter(opts Options, r *runner.Runner, logger *slog.Logger) (*Exporter, error) {
	if opts.OutputDir == "" {
		return nil, fmt.Errorf("output directory is empty")
	}
	if opts.Mode == record.ModeSeparate {
		return nil, fmt.Errorf("separate mode: %w", eml.ErrUnsupportedParameter)
	}
	tracker := r.Tracker()
	if tracker == nil {
		return nil, fmt.Errorf("tracker must not be nil")
	}
	exporter := &Exporter{
		opts:    opts,
		runner:  r,
		tracker: tracker,
		exports: r.Exports(),
		logger:  logger,
		mboxes:  make(map[string]*folderMbox),
		seq:     make(map[string]int),
	}
	r.AddStage("export", exporter.run)
	return exporter, nil
}

func (e *Exporter) run(ctx context.Context) error {
	defer e.closeMboxes()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec, ok := <-e.exports:
			if !ok {
				return nil
			}
			e.record(rec)
		}
	}
}

func (e *Exporter) record(rec *record.Record) {
	id := model.ID(rec)
	structural := rec.Kind == record.KindMessageStore || rec.Kind == record.KindFolder

	if e.opts.DryRun {
		if !structural {
			digest := model.Digest(e.runner.StoreName(), rec)
			if err := e.tracker.MarkProcessed(digest, id); err != nil {
				e.emitError(id, err)
				return
			}
			e.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeDryRunExport, RecordID: id})
		}
		if e.logger != nil {
			e.logger.Debug("dry-run export", "record", id, "kind", rec.Kind.String())
		}
		return
	}

	if err := e.write(rec); err != nil {
		e.emitError(id, err)
		return
	}
	if structural {
		return
	}

	digest := model.Digest(e.runner.StoreName(), rec)
	if err := e.tracker.MarkProcessed(digest, id); err != nil {
		e.emitError(id, err)
		return
	}
	e.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeExported, RecordID: id})
	if e.logger != nil {
		e.logger.Debug("exported record", "record", id, "kind", rec.Kind.String())
	}
}

func (e *Exporter) write(rec *record.Record) error {
	conf := record.ExportConf{Mode: e.opts.Mode, EmailOptions: e.opts.EmailOptions}

	switch rec.Kind {
	case record.KindMessageStore:
		return os.MkdirAll(e.opts.OutputDir, 0o755)

	case record.KindFolder:
		if e.opts.Mode != record.ModeRecurse {
			return nil // folders materialize lazily as mbox files
		}
		rec.SetRenaming(filepath.Join(e.dirFor(rec.LogicalPath), sanitizeName(rec.Name)))
		_, err := rec.ToFile(conf)
		return err

	case record.KindMessage:
		if e.opts.Mode == record.ModeRecurse {
			rec.SetRenaming(e.nextFile(rec, "eml"))
			_, err := rec.ToFile(conf)
			return err
		}
		return e.appendMbox(rec)

	case record.KindJournal, record.KindAppointment:
		rec.SetRenaming(e.nextFile(rec, "ics"))
		_, err := rec.ToFile(conf)
		return err
	}
	return fmt.Errorf("%w: %s", record.ErrUnknownRecordKind, rec.Kind)
}

// appendMbox composes the message and appends it to its folder's mbox
// file, opening the file on first use.
func (e *Exporter) appendMbox(rec *record.Record) error {
	var buf bytes.Buffer
	if err := eml.Compose(&buf, rec.Item, rec.Store(), e.opts.EmailOptions); err != nil {
		return fmt.Errorf("compose %q: %w", model.ID(rec), err)
	}

	box, err := e.mboxFor(rec.LogicalPath)
	if err != nil {
		return err
	}

	from := "MAILER-DAEMON"
	if addr := rec.Item.Email.SenderAddress; strings.Contains(addr, "@") {
		from = addr
	}
	date := time.Now()
	if sent := rec.Item.Email.SentDate; sent != nil {
		date = *sent
	}

	w, err := box.writer.CreateMessage(from, date)
	if err != nil {
		return fmt.Errorf("mbox message for %q: %w", rec.LogicalPath, err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("mbox write for %q: %w", rec.LogicalPath, err)
	}
	return nil
}

func (e *Exporter) mboxFor(logicalPath string) (*folderMbox, error) {
	if box, ok := e.mboxes[logicalPath]; ok {
		return box, nil
	}

	path := e.mboxPath(logicalPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating mbox directory for %q: %w", logicalPath, err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening mbox %q: %w", path, err)
	}

	box := &folderMbox{file: file, writer: mboxlib.NewWriter(file)}
	e.mboxes[logicalPath] = box
	return box, nil
}

// mboxPath maps a logical folder path to its mbox file. Normal mode
// mirrors the folder tree with an .mbox file per folder; kmail mode nests
// folders as ".<name>.directory" directories with a plain file per folder.
func (e *Exporter) mboxPath(logicalPath string) string {
	segments := splitPath(logicalPath)
	if len(segments) == 0 {
		segments = []string{fallbackMboxName}
	}

	if e.opts.Mode == record.ModeKMail {
		parts := make([]string, 0, len(segments))
		for _, seg := range segments[:len(segments)-1] {
			parts = append(parts, "."+sanitizeName(seg)+".directory")
		}
		parts = append(parts, sanitizeName(segments[len(segments)-1]))
		return filepath.Join(append([]string{e.opts.OutputDir}, parts...)...)
	}

	parts := make([]string, 0, len(segments))
	for _, seg := range segments[:len(segments)-1] {
		parts = append(parts, sanitizeName(seg))
	}
	parts = append(parts, sanitizeName(segments[len(segments)-1])+".mbox")
	return filepath.Join(append([]string{e.opts.OutputDir}, parts...)...)
}

// nextFile numbers records within each folder so identical display names
// never collide on disk.
func (e *Exporter) nextFile(rec *record.Record, ext string) string {
	dir := e.dirFor(rec.LogicalPath)
	e.seq[dir]++
	name := fmt.Sprintf("%d_%s.%s", e.seq[dir], sanitizeName(rec.Name), ext)
	return filepath.Join(dir, name)
}

func (e *Exporter) dirFor(logicalPath string) string {
	segments := splitPath(logicalPath)
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, e.opts.OutputDir)
	for _, seg := range segments {
		parts = append(parts, sanitizeName(seg))
	}
	return filepath.Join(parts...)
}

func (e *Exporter) closeMboxes() {
	for path, box := range e.mboxes {
		// the writer terminates the last message and flushes partial lines
		if err := box.writer.Close(); err != nil && e.logger != nil {
			e.logger.Warn("closing mbox writer failed", "folder", path, "err", err)
		}
		if err := box.file.Close(); err != nil && e.logger != nil {
			e.logger.Warn("closing mbox failed", "folder", path, "err", err)
		}
	}
}

func (e *Exporter) emitError(id string, err error) {
	e.runner.EmitEvent(stats.Event{Stage: stats.StageExport, Type: stats.EventTypeError, RecordID: id, Err: err})
	if e.logger != nil {
		e.logger.Warn("export failed", "record", id, "err", err)
	}
}

func splitPath(logicalPath string) []string {
	if logicalPath == "" {
		return nil
	}
	return strings.Split(logicalPath, "/")
}

// sanitizeName keeps display names usable as file names.
func sanitizeName(name string) string {
	if name == "" {
		return "unnamed"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		if r < 32 {
			return '_'
		}
		return r
	}, name)
}
