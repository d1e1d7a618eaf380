package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/ingestion"
	"github.com/poiesic/docflow/reembed"
	"github.com/urfave/cli/v2"
)

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(c *cli.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:      "ingest",
		Usage:     "Chunk, embed and store documents, queueing them for enrichment",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Usage: "Source recorded on every document"},
			&cli.StringFlag{Name: "type", Usage: "Document type", Value: "document"},
			&cli.StringFlag{Name: "language", Usage: "Document language (defaults to the configured language)"},
			&cli.BoolFlag{Name: "defer", Usage: "Only submit the files to the ingestion queue"},
			&cli.BoolFlag{Name: "pending", Usage: "Process documents waiting in the ingestion queue"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 && !c.Bool("pending") {
				return fmt.Errorf("at least one file or --pending is required")
			}

			inputs, err := readInputs(c)
			if err != nil {
				return err
			}

			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			ctx, stop := signalContext(c)
			defer stop()
			out := c.App.Writer

			if c.Bool("defer") {
				jobs, err := sys.Ingestion().Submit(ctx, inputs...)
				if err != nil {
					return fmt.Errorf("submitting documents: %w", err)
				}
				fmt.Fprintf(out, "Submitted %d documents to the ingestion queue\n", len(jobs))
				return nil
			}

			if len(inputs) > 0 {
				batch, err := sys.Ingestion().IngestBatch(ctx, inputs)
				if batch != nil {
					for _, r := range batch.Results {
						if r.Err != nil {
							fmt.Fprintf(out, "FAILED %s: %v\n", c.Args().Get(r.Index), r.Err)
							continue
						}
						fmt.Fprintf(out, "%s -> %s (%d chunks, %d ms)\n", c.Args().Get(r.Index), r.DocumentID, r.ChunksCreated, r.LatencyMs)
					}
					sys.Reporter().RecordIngestion(batch.Successful, batch.Failed, chunkTotal(batch.Results), batch.LatencyMs)
					fmt.Fprintf(out, "Ingested %d/%d documents in %d ms\n", batch.Successful, batch.Total, batch.LatencyMs)
				}
				if err != nil {
					return err
				}
			}

			if c.Bool("pending") {
				result, err := sys.Ingestion().ProcessIngestionQueue(ctx)
				if err != nil {
					return fmt.Errorf("processing ingestion queue: %w", err)
				}
				fmt.Fprintf(out, "Processed %d queued documents: %d ok, %d failed\n", result.Claimed, result.Successful, result.Failed)
			}
			return nil
		},
	}
}

func chunkTotal(results []ingestion.DocumentResult) int {
	total := 0
	for _, r := range results {
		if r.Err == nil {
			total += r.ChunksCreated
		}
	}
	return total
}

func readInputs(c *cli.Context) ([]core.DocumentInput, error) {
	inputs := make([]core.DocumentInput, 0, c.NArg())
	for _, path := range c.Args().Slice() {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		source := c.String("source")
		if source == "" {
			source = path
		}
		base := filepath.Base(path)
		inputs = append(inputs, core.DocumentInput{
			Title:    strings.TrimSuffix(base, filepath.Ext(base)),
			Text:     string(data),
			Source:   source,
			Type:     c.String("type"),
			Language: c.String("language"),
		})
	}
	return inputs, nil
}

func enrichCommand() *cli.Command {
	return &cli.Command{
		Name:  "enrich",
		Usage: "Extract entities and cross-reference queued documents",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "watch", Usage: "Keep running and process new items as they are queued"},
		},
		Action: func(c *cli.Context) error {
			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			ctx, stop := signalContext(c)
			defer stop()

			if c.Bool("watch") {
				err := sys.Worker().Start(ctx)
				sys.Reporter().WriteTo(c.App.Writer)
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			for {
				result, err := sys.Enrichment().ProcessQueue(ctx)
				if err != nil {
					return err
				}
				if result.Processed == 0 {
					break
				}
				sys.Reporter().RecordEnrichment(result.Successful, result.Failed,
					result.EntitiesExtracted, result.CrossReferencesCreated, result.LatencyMs)
			}
			_, err = sys.Reporter().WriteTo(c.App.Writer)
			return err
		},
	}
}

func monitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Collect performance metrics and raise alerts",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "once", Usage: "Collect a single snapshot and exit"},
		},
		Action: func(c *cli.Context) error {
			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			ctx, stop := signalContext(c)
			defer stop()

			if c.Bool("once") {
				snapshot, alerts, err := sys.Monitor().CollectMetrics(ctx)
				if err != nil {
					return err
				}
				printSnapshot(c.App.Writer, snapshot)
				printAlerts(c.App.Writer, alerts)
				return nil
			}

			sys.Monitor().AddAlertListener(func(alert *core.Alert) {
				fmt.Fprintf(c.App.Writer, "[%s] %s\n", alert.Severity, alert.Message)
			})
			if err := sys.Monitor().Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run the enrichment worker and the monitor until interrupted",
		Action: func(c *cli.Context) error {
			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			ctx, stop := signalContext(c)
			defer stop()

			err = sys.Run(ctx)
			sys.Reporter().WriteTo(c.App.Writer)
			return err
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current system health",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(c *cli.Context) error {
			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			status, err := sys.Monitor().GetSystemStatus(c.Context)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, status)
			}

			out := c.App.Writer
			fmt.Fprintf(out, "Status:  %s\n", status.Status)
			fmt.Fprintf(out, "Summary: %s\n", status.Summary)
			fmt.Fprintf(out, "Alerts:  %d critical, %d warning\n", status.Alerts.Critical, status.Alerts.Warning)
			if status.Metrics != nil {
				printSnapshot(out, status.Metrics)
			}
			return nil
		},
	}
}

func dashboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "Summarize metrics and alerts over a time window",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "window", Usage: "Trailing window to summarize", Value: 24 * time.Hour},
			&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
		},
		Action: func(c *cli.Context) error {
			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			dash, err := sys.Monitor().GetDashboardData(c.Context, c.Duration("window"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, dash)
			}

			out := c.App.Writer
			s := dash.Summary
			fmt.Fprintf(out, "Health: %s (%s)\n", dash.CurrentHealth.Status, dash.CurrentHealth.Summary)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "snapshots\t%d\n", s.Snapshots)
			fmt.Fprintf(w, "avg ingestion rate\t%.1f docs\n", s.AvgIngestionRate)
			fmt.Fprintf(w, "avg enrichment latency\t%.0f ms\n", s.AvgEnrichmentLatencyMs)
			fmt.Fprintf(w, "avg query latency\t%.0f ms\n", s.AvgQueryLatencyMs)
			fmt.Fprintf(w, "avg cross-reference confidence\t%.1f\n", s.AvgCrossRefConfidence)
			fmt.Fprintf(w, "peak pool utilization\t%.0f%%\n", s.PeakPoolUtilization*100)
			fmt.Fprintf(w, "peak enrichment queue\t%d\n", s.PeakEnrichmentQueue)
			w.Flush()
			printAlerts(out, dash.Alerts)
			return nil
		},
	}
}

func ackCommand() *cli.Command {
	return &cli.Command{
		Name:      "ack",
		Usage:     "Acknowledge alerts so they no longer affect the status",
		ArgsUsage: "ALERT_ID...",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("at least one alert ID is required")
			}
			ids := make([]core.ID, 0, c.NArg())
			for _, arg := range c.Args().Slice() {
				id, err := strconv.ParseUint(arg, 16, 64)
				if err != nil {
					return fmt.Errorf("invalid alert ID %q", arg)
				}
				ids = append(ids, core.ID(id))
			}

			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			for _, id := range ids {
				if err := sys.Monitor().AcknowledgeAlert(c.Context, id); err != nil {
					return fmt.Errorf("acknowledging %s: %w", id, err)
				}
				fmt.Fprintf(c.App.Writer, "Acknowledged %s\n", id)
			}
			return nil
		},
	}
}

func corpusImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "corpus-import",
		Usage:     "Load reference corpus records from CSV (collection,id,name,aliases)",
		ArgsUsage: "FILE",
		Description: "Each row holds a collection (persons or facilities), an optional ID, a name\n" +
			"and optional aliases separated by '|'. A header row starting with\n" +
			"\"collection\" is skipped.",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("exactly one CSV file is required")
			}
			f, err := os.Open(c.Args().First())
			if err != nil {
				return err
			}
			defer f.Close()

			records, err := parseCorpusCSV(f)
			if err != nil {
				return err
			}

			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			stored, err := sys.Store().Corpus.AddRecords(c.Context, records...)
			if err != nil {
				return fmt.Errorf("storing corpus: %w", err)
			}
			fmt.Fprintf(c.App.Writer, "Imported %d corpus records\n", len(stored))
			return nil
		},
	}
}

func parseCorpusCSV(r io.Reader) ([]*core.CorpusRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records []*core.CorpusRecord
	for line := 1; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(row[0], "collection") {
			continue
		}
		if len(row) < 3 || row[0] == "" || row[2] == "" {
			return nil, fmt.Errorf("line %d: collection and name are required", line)
		}

		record := &core.CorpusRecord{Collection: row[0], ID: row[1], Name: row[2]}
		if len(row) > 3 && row[3] != "" {
			for _, alias := range strings.Split(row[3], "|") {
				if alias = strings.TrimSpace(alias); alias != "" {
					record.Aliases = append(record.Aliases, alias)
				}
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func reembedCommand() *cli.Command {
	defaults := reembed.DefaultConfig()
	return &cli.Command{
		Name:  "reembed",
		Usage: "Re-embed every stored chunk with the configured embedder",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Number of chunks to embed per call",
				Value: defaults.BatchSize,
			},
			&cli.IntFlag{
				Name:  "report-interval",
				Usage: "Report progress every N chunks",
				Value: defaults.ReportInterval,
			},
			&cli.IntFlag{
				Name:  "max-retries",
				Usage: "Maximum attempts per embedding call",
				Value: defaults.MaxRetries,
			},
			&cli.DurationFlag{
				Name:  "retry-delay",
				Usage: "Base delay for exponential backoff",
				Value: defaults.RetryDelay,
			},
		},
		Action: func(c *cli.Context) error {
			cfg := &reembed.Config{
				BatchSize:      c.Int("batch-size"),
				ReportInterval: c.Int("report-interval"),
				MaxRetries:     c.Int("max-retries"),
				RetryDelay:     c.Duration("retry-delay"),
				MaxRetryDelay:  defaults.MaxRetryDelay,
			}
			if cfg.BatchSize <= 0 {
				return fmt.Errorf("batch-size must be greater than 0")
			}
			if cfg.ReportInterval <= 0 {
				return fmt.Errorf("report-interval must be greater than 0")
			}
			if cfg.MaxRetries <= 0 {
				return fmt.Errorf("max-retries must be greater than 0")
			}

			sys, err := openSystem(c)
			if err != nil {
				return err
			}
			defer sys.Close()

			ctx, stop := signalContext(c)
			defer stop()

			r, err := sys.NewReembedder(cfg, c.App.ErrWriter)
			if err != nil {
				return err
			}
			if _, err := r.Run(ctx); err != nil {
				return fmt.Errorf("reembedding failed: %w", err)
			}
			return nil
		},
	}
}

func printSnapshot(out io.Writer, s *core.PerformanceMetricSnapshot) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "collected\t%s\n", formatTime(s.Timestamp))
	fmt.Fprintf(w, "ingestion\t%d docs, %d failed, %d chunks, queue %d\n",
		s.Ingestion.DocumentsProcessed, s.Ingestion.Failures, s.Ingestion.ChunksCreated, s.Ingestion.QueueDepth)
	fmt.Fprintf(w, "enrichment\t%d docs, %d failed, %.0f ms avg, queue %d\n",
		s.Enrichment.DocumentsEnriched, s.Enrichment.Failures, s.Enrichment.AvgLatencyMs, s.Enrichment.QueueDepth)
	fmt.Fprintf(w, "entities\t%d extracted, %d cross-references (%.1f avg confidence)\n",
		s.Enrichment.EntitiesExtracted, s.Enrichment.CrossReferencesCreated, s.Enrichment.AvgCrossRefConfidence)
	fmt.Fprintf(w, "queries\t%d, %.0f ms avg\n", s.Query.Count, s.Query.AvgLatencyMs)
	fmt.Fprintf(w, "system\tcpu %.1f%%, mem %.1f%%, pool %d/%d\n",
		s.System.CPUPercent, s.System.MemoryPercent, s.System.PoolRunning, s.System.PoolSize)
	w.Flush()
}

func printAlerts(out io.Writer, alerts []*core.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintln(out, "No alerts")
		return
	}
	sorted := slices.Clone(alerts)
	slices.SortFunc(sorted, func(a, b *core.Alert) int {
		return b.Timestamp.Compare(a.Timestamp)
	})

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSEVERITY\tMETRIC\tTIME\tACK\tMESSAGE")
	for _, a := range sorted {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			a.ID, a.Severity, a.Metric, formatTime(a.Timestamp), a.Acknowledged, a.Message)
	}
	w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
