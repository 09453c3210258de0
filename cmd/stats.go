package cmd

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/SpongeData-cz/gopst/filter"
	"github.com/SpongeData-cz/gopst/record"
	"github.com/SpongeData-cz/gopst/stats"
	"github.com/SpongeData-cz/gopst/store"
	"github.com/SpongeData-cz/gopst/walk"
)

// NewStatsCmd builds the "stats" subcommand: walk a store and report what
// it contains without exporting anything.
func NewStatsCmd() *cobra.Command {
	var (
		reportDir      string
		topN           int
		includeSubject []string
		includeBody    []string
		excludeSubject []string
		excludeBody    []string
	)

	statsCmd := &cobra.Command{
		Use:   "stats [pst file]",
		Short: "Analyse the PST file and show statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pstPath := args[0]

			fmt.Println("Analyzing PST file:", pstPath)

			f, err := filter.New(filter.Options{
				IncludeSubject: includeSubject,
				IncludeBody:    includeBody,
				ExcludeSubject: excludeSubject,
				ExcludeBody:    excludeBody,
			})
			if err != nil {
				return fmt.Errorf("create filter: %w", err)
			}

			st, err := store.Open(pstPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
			enum, err := walk.Build(st, logger)
			if err != nil {
				return fmt.Errorf("walk store: %w", err)
			}

			counter := map[string]map[string]int{
				"Folder":  make(map[string]int),
				"Sender":  make(map[string]int),
				"Subject": make(map[string]int),
				"Kind":    make(map[string]int),
			}

			recordCount := 0
			skippedCount := 0
			for _, rec := range enum.Records() {
				if !f.AllowsRecord(rec) {
					skippedCount++
					continue
				}
				recordCount++

				counter["Kind"][rec.Kind.String()]++
				switch rec.Kind {
				case record.KindFolder:
					counter["Folder"][rec.Name] = int(rec.Item.Folder.ItemCount)
				case record.KindMessage:
					if from := rec.Item.Email.SenderName; from != "" {
						counter["Sender"][from]++
					}
					if subject := rec.Item.Subject; subject != "" {
						counter["Subject"][subject]++
					}
				}
			}

			totalRecords := recordCount + skippedCount
			var filterPercent float64
			if totalRecords > 0 {
				filterPercent = float64(skippedCount) / float64(totalRecords) * 100
			}
			fmt.Printf("Walked %d records (skipped %d by filters, %.2f%%)\n\n",
				recordCount, skippedCount, filterPercent)

			for _, category := range []string{"Kind", "Folder", "Sender", "Subject"} {
				fmt.Printf("Top %d %s:\n", topN, category)
				stats.PrettyPrintTop(counter[category], topN)
				fmt.Println()
			}

			if err := saveCSVReports(counter, reportDir, 1000); err != nil {
				return fmt.Errorf("error saving CSV reports: %w", err)
			}
			fmt.Printf("\nReports saved to directory: %s\n", reportDir)

			return nil
		},
	}

	statsCmd.Flags().StringVarP(&reportDir, "output", "o", ".", "Output directory for CSV reports")
	statsCmd.Flags().IntVarP(&topN, "top", "t", 10, "Number of top items to display in statistics")
	statsCmd.Flags().StringArrayVar(&includeSubject, "include-subject", nil, "Regex allow-list applied to record subjects (mutually exclusive with exclude flags)")
	statsCmd.Flags().StringArrayVar(&includeBody, "include-body", nil, "Regex allow-list applied to record bodies (mutually exclusive with exclude flags)")
	statsCmd.Flags().StringArrayVar(&excludeSubject, "exclude-subject", nil, "Regex block-list applied to record subjects (mutually exclusive with include flags)")
	statsCmd.Flags().StringArrayVar(&excludeBody, "exclude-body", nil, "Regex block-list applied to record bodies (mutually exclusive with include flags)")

	return statsCmd
}

func saveCSVReports(counter map[string]map[string]int, dir string, limit int) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for category, counts := range counter {
		filename := fmt.Sprintf("report_%s.csv", strings.ToLower(category))
		filePath := filepath.Join(dir, filename)

		file, err := os.Create(filePath)
		if err != nil {
			return err
		}

		writer := csv.NewWriter(file)

		if err := writer.Write([]string{"Value", "Count"}); err != nil {
			file.Close()
			return err
		}

		type pair struct {
			Key   string
			Value int
		}
		var pairs []pair
		for k, v := range counts {
			pairs = append(pairs, pair{k, v})
		}
		sort.Slice(pairs, func(i, j int) bool {
			return pairs[i].Value > pairs[j].Value
		})

		for i := 0; i < limit && i < len(pairs); i++ {
			row := []string{
				pairs[i].Key,
				strconv.Itoa(pairs[i].Value),
			}
			if err := writer.Write(row); err != nil {
				file.Close()
				return err
			}
		}

		writer.Flush()
		file.Close()

		if err := writer.Error(); err != nil {
			return err
		}
	}

	return nil
}
