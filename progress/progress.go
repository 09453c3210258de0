package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/SpongeData-cz/gopst/stats"
)

// Bar manages a progress bar for tracking record export.
type Bar struct {
	pb             *pterm.ProgressbarPrinter
	total          int
	alreadyDone    int
	currentScanned int
	mu             sync.Mutex
	enabled        bool
}

// New creates a new progress bar if logLevel is "info".
func New(total int, alreadyDone int, logLevel string) *Bar {
	enabled := logLevel == "info"

	bar := &Bar{
		total:       total,
		alreadyDone: alreadyDone,
		enabled:     enabled,
	}

	if enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Exporting records").
			Start()

		bar.pb = pb

		pterm.Info.Printf("Total records in store: %d\n", total)
		pterm.Info.Printf("Already exported: %d\n", alreadyDone)
		pterm.Info.Printf("Remaining to export: %d\n", total-alreadyDone)
		pterm.Println()

		pb.Current = alreadyDone
	}

	return bar
}

// Update increments the progress bar based on the event type.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeScanned:
		b.currentScanned++
		b.pb.Increment()

		if evt.RecordID != "" {
			displayID := evt.RecordID
			if len(displayID) > 40 {
				displayID = displayID[:37] + "..."
			}
			b.pb.UpdateTitle("Exporting: " + displayID)
		}
	case stats.EventTypeExported, stats.EventTypeDryRunExport:
		// progress bar advance covers these
	case stats.EventTypeDuplicate, stats.EventTypeSkipped:
		// counted in the final summary
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	b.pb.Stop()
	pterm.Success.Println("Export complete!")
}

// Subscriber creates a stats subscriber function that updates the progress bar.
func (b *Bar) Subscriber(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			b.Update(evt)
		}
	}
}

// ProgressReporter wraps the stats Reporter with progress bar functionality.
type ProgressReporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewProgressReporter creates a new progress reporter with optional progress bar.
func NewProgressReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *ProgressReporter {
	reporter := &ProgressReporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}

	if bar != nil && bar.enabled {
		stream.SubscribeStats("progress", reporter.consume)
	}

	return reporter
}

// consume drives both the bar and the statistics from one subscription.
// The event channel is competitively consumed, so the bar and the
// collector must share a single subscriber.
func (pr *ProgressReporter) consume(ctx context.Context, events <-chan stats.Event) error {
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case evt, ok := <-events:
			if !ok {
				break loop
			}
			pr.bar.Update(evt)
			pr.collector.Apply(evt)
		}
	}

	summary := pr.collector.Snapshot()
	duration := time.Since(pr.started)

	if pr.logger != nil {
		pterm.Println()
		pterm.DefaultSection.Println("Summary Statistics")
		pterm.Info.Printf("Duration: %v\n", duration)
		pterm.Info.Printf("Scanned: %d\n", summary.Scanned)
		pterm.Info.Printf("Enqueued: %d\n", summary.Enqueued)
		pterm.Info.Printf("Exported: %d\n", summary.Exported)
		pterm.Info.Printf("Dry-run exported: %d\n", summary.DryRunExported)
		pterm.Info.Printf("Duplicates (skipped): %d\n", summary.Duplicates)
		pterm.Info.Printf("Filtered (skipped): %d\n", summary.Skipped)
		pterm.Info.Printf("Errors: %d\n", summary.Errors)
		if summary.LastError != nil {
			pterm.Error.Printf("Last error: %v\n", summary.LastError)
		}
	}

	return nil
}
