package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"os"

	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/config"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/enrichment"
	"github.com/poiesic/docflow/ingestion"
)

// Reference corpus. Reports mention some names with typos or without
// accents so cross-referencing has fuzzy work to do.
var (
	persons = []string{
		"María López", "Carlos Romero", "Ana Ruiz", "Javier Ortega", "Lucía Fernández",
		"Pedro Sánchez Vidal", "Elena Castro", "Miguel Ángel Torres", "Sofía Herrera", "Andrés Molina",
	}
	facilities = []string{
		"Hospital San Juan", "Comisaría Centro", "Universidad de Sevilla", "Aeropuerto de Barajas",
		"Banco Mediterráneo", "Clínica Santa Elena", "Juzgado de Guardia", "Hotel Miramar",
	}
	honorifics = []string{"inspector", "inspectora", "agente", "doctor", "doctora", "Sr.", "Sra."}
	variants   = map[string]string{
		"María López":     "Maria Lopez",
		"Lucía Fernández": "Lucia Fernandes",
		"Elena Castro":    "Elena Castra",
	}
	templates = []string{
		"El %s %s fue visto cerca del %s el %d de %s de 2024.",
		"Según el informe, la %s %s acudió al %s para prestar declaración.",
		"Se solicitó la presencia del %s %s en el %s tras el incidente del %d de %s.",
		"La %s %s confirmó que no hubo heridos en el %s.",
	}
	months = []string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio", "agosto"}
)

var (
	dbPath    = flag.String("db", "./docflow_db", "database directory")
	provider  = flag.String("provider", config.ProviderPattern, "AI provider: openai or pattern")
	seedFile  = flag.String("src", "", "file of seed documents, one per line")
	count     = flag.Int("n", 50, "number of generated reports when -src is not given")
	batchSize = flag.Int("batch", 10, "ingestion batch size")
	seed      = flag.Uint64("seed", 1, "random seed for generated reports")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// linesFromFile returns an iterator over lines in a file.
func linesFromFile(filename string) (iter.Seq[string], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(string) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(scanner.Text()) {
				return
			}
		}
	}, nil
}

// generatedReports returns an iterator over n synthetic incident reports.
func generatedReports(n int, rng *rand.Rand) iter.Seq[string] {
	pick := func(s []string) string { return s[rng.IntN(len(s))] }
	return func(yield func(string) bool) {
		for range n {
			name := pick(persons)
			if v, ok := variants[name]; ok && rng.IntN(2) == 0 {
				name = v
			}
			var report string
			switch tmpl := pick(templates); tmpl {
			case templates[0], templates[2]:
				report = fmt.Sprintf(tmpl, pick(honorifics), name, pick(facilities), 1+rng.IntN(28), pick(months))
			default:
				report = fmt.Sprintf(tmpl, pick(honorifics), name, pick(facilities))
			}
			if !yield(report) {
				return
			}
		}
	}
}

func seedCorpus(ctx context.Context, sys *docflow.System) error {
	records := make([]*core.CorpusRecord, 0, len(persons)+len(facilities))
	for _, name := range persons {
		records = append(records, &core.CorpusRecord{Collection: enrichment.CollectionPersons, Name: name})
	}
	for _, name := range facilities {
		records = append(records, &core.CorpusRecord{Collection: enrichment.CollectionFacilities, Name: name})
	}
	_, err := sys.Store().Corpus.AddRecords(ctx, records...)
	return err
}

// ingestBatched reads from a source iterator and ingests documents in batches.
func ingestBatched(ctx context.Context, engine *ingestion.Engine, source iter.Seq[string], batchSize int) error {
	batch := make([]core.DocumentInput, 0, batchSize)
	flush := func() error {
		result, err := engine.IngestBatch(ctx, batch)
		if err != nil {
			return err
		}
		slog.Info("ingested batch", "successful", result.Successful, "failed", result.Failed)
		batch = batch[:0]
		return nil
	}

	for line := range source {
		if line == "" {
			continue
		}
		batch = append(batch, core.DocumentInput{Text: line, Source: "seeder", Type: "report"})
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if len(batch) > 0 {
		return flush()
	}
	return nil
}

func main() {
	cfg, err := config.New(config.WithStoragePath(*dbPath), config.WithProvider(*provider))
	if err != nil {
		panic(err)
	}

	sys, err := docflow.Open(cfg)
	if err != nil {
		panic(err)
	}
	defer sys.Close()

	ctx := context.Background()

	if err := seedCorpus(ctx, sys); err != nil {
		panic(err)
	}

	var source iter.Seq[string]
	if *seedFile != "" {
		source, err = linesFromFile(*seedFile)
		if err != nil {
			panic(err)
		}
	} else {
		source = generatedReports(*count, rand.New(rand.NewPCG(*seed, *seed)))
	}

	if err := ingestBatched(ctx, sys.Ingestion(), source, *batchSize); err != nil {
		panic(err)
	}
}
