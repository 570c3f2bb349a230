// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/poiesic/knowit"
	"github.com/poiesic/knowit/core"
	"github.com/poiesic/knowit/parse"
	"github.com/poiesic/knowit/retrieval"
	"github.com/urfave/cli/v2"
)

// Ingestion jobs run on the service's own worker pool, so commands that
// start a job stay alive until it finishes and poll tighter than the
// cross-process watch interval.
const progressPoll = 250 * time.Millisecond

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	dbFlag := func() *cli.StringFlag {
		return &cli.StringFlag{
			Name:     "db",
			Aliases:  []string{"d"},
			Usage:    "Path to the knowledge base directory",
			Required: true,
		}
	}

	return &cli.App{
		Name:  "knowit",
		Usage: "Embedded knowledge base with document ingestion and semantic retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "create-collection",
				Usage:     "Create a collection, optionally ingesting initial files",
				ArgsUsage: "[files...]",
				Action:    createCollectionCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.StringFlag{
						Name:    "name",
						Aliases: []string{"n"},
						Usage:   "Collection name (named after its id when empty)",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "Collection description",
					},
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Target chunk size in tokens (0 uses the default)",
					},
					&cli.IntFlag{
						Name:  "chunk-overlap",
						Usage: "Tokens repeated from the end of the previous chunk",
					},
					&cli.IntFlag{
						Name:  "embed-batch-size",
						Usage: "Chunk texts per embedding call (0 uses the default)",
					},
					&cli.StringFlag{
						Name:  "chunk-template",
						Usage: "Render template with a {{chunk}} placeholder",
					},
				},
			},
			{
				Name:      "add",
				Usage:     "Ingest files into a collection",
				ArgsUsage: "files...",
				Action:    addCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.Uint64Flag{
						Name:     "collection",
						Aliases:  []string{"c"},
						Usage:    "Collection ID",
						Required: true,
					},
				},
			},
			{
				Name:   "create-index",
				Usage:  "Create a retrieval index on a collection",
				Action: createIndexCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.Uint64Flag{
						Name:     "collection",
						Aliases:  []string{"c"},
						Usage:    "Collection ID",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Usage:    "Index name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Embedding provider (openai, ollama, mock)",
					},
					&cli.StringFlag{
						Name:  "model",
						Usage: "Embedding model name (empty uses the provider default)",
					},
					&cli.StringFlag{
						Name:  "store",
						Usage: "Vector store backend (badger, pgvector)",
						Value: "badger",
					},
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "Search strategy (vector, fulltext, hybrid)",
						Value: "vector",
					},
					&cli.Float64Flag{
						Name:  "semantic-weight",
						Usage: "Semantic branch weight for hybrid search",
					},
					&cli.Float64Flag{
						Name:  "keyword-weight",
						Usage: "Keyword branch weight for hybrid search",
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Default result count (0 uses the system default)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Default minimum score in [0,1]",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Search an index",
				ArgsUsage: "query...",
				Action:    queryCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.Uint64Flag{
						Name:     "index",
						Aliases:  []string{"i"},
						Usage:    "Index ID",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "Override the index result count",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Override the index minimum score",
					},
				},
			},
			{
				Name:   "status",
				Usage:  "Show the state of an ingestion job",
				Action: statusCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.Uint64Flag{
						Name:     "job",
						Aliases:  []string{"j"},
						Usage:    "Job ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:    "watch",
						Aliases: []string{"w"},
						Usage:   "Poll until the job reaches a terminal state",
					},
				},
			},
			{
				Name:   "list",
				Usage:  "List collections and their indexes",
				Action: listCommand,
				Flags:  []cli.Flag{dbFlag()},
			},
			{
				Name:   "show",
				Usage:  "Show a collection with its documents, indexes and jobs",
				Action: showCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.Uint64Flag{
						Name:     "collection",
						Aliases:  []string{"c"},
						Usage:    "Collection ID",
						Required: true,
					},
				},
			},
			{
				Name:   "delete-collection",
				Usage:  "Delete a collection with its documents and chunks",
				Action: deleteCollectionCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.Uint64Flag{
						Name:     "collection",
						Aliases:  []string{"c"},
						Usage:    "Collection ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "cascade",
						Usage: "Also delete the collection's indexes",
					},
				},
			},
			{
				Name:   "delete-index",
				Usage:  "Delete an index and its stored vectors",
				Action: deleteIndexCommand,
				Flags: []cli.Flag{
					dbFlag(),
					&cli.Uint64Flag{
						Name:     "index",
						Aliases:  []string{"i"},
						Usage:    "Index ID",
						Required: true,
					},
				},
			},
		},
	}
}

func createCollectionCommand(c *cli.Context) error {
	inputs, err := readInputs(c.Args().Slice())
	if err != nil {
		return err
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()
	collection, job, err := service.CreateCollection(ctx, knowit.CollectionSpec{
		Name:        c.String("name"),
		Description: c.String("description"),
		Config: core.ProcessingConfig{
			ChunkTokenSize:     c.Int("chunk-size"),
			ChunkOverlap:       c.Int("chunk-overlap"),
			EmbeddingBatchSize: c.Int("embed-batch-size"),
			ChunkTemplate:      c.String("chunk-template"),
		},
	}, inputs...)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Created collection %d (%s)\n", collection.Id, collection.Name)
	if job == nil {
		return nil
	}
	fmt.Fprintf(os.Stderr, "Ingesting %d files as job %d\n", job.TotalFiles, job.Id)
	return waitJob(ctx, service, job.Id)
}

func addCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	inputs, err := readInputs(c.Args().Slice())
	if err != nil {
		return err
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()
	job, err := service.AddDocuments(ctx, core.ID(c.Uint64("collection")), inputs...)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Ingesting %d files as job %d\n", job.TotalFiles, job.Id)
	return waitJob(ctx, service, job.Id)
}

func createIndexCommand(c *cli.Context) error {
	strategy, err := parseStrategy(c.String("strategy"))
	if err != nil {
		return err
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()
	index, job, err := service.CreateIndex(ctx, knowit.IndexSpec{
		Name:              c.String("name"),
		CollectionId:      core.ID(c.Uint64("collection")),
		EmbeddingProvider: core.EmbeddingProvider(c.String("provider")),
		EmbeddingModel:    c.String("model"),
		Store:             core.StoreProvider(c.String("store")),
		Strategy:          strategy,
		SemanticWeight:    c.Float64("semantic-weight"),
		KeywordWeight:     c.Float64("keyword-weight"),
		TopK:              c.Int("top-k"),
		ScoreThreshold:    c.Float64("threshold"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Created index %d (%s, %s)\n", index.Id, index.Name, index.Strategy)
	if job == nil {
		return nil
	}
	fmt.Fprintf(os.Stderr, "Embedding %d documents as job %d\n", job.TotalFiles, job.Id)
	return waitJob(ctx, service, job.Id)
}

func queryCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("query text is required")
	}

	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	opts := &retrieval.SearchOptions{TopK: c.Int("top-k")}
	if c.IsSet("threshold") {
		threshold := c.Float64("threshold")
		opts.ScoreThreshold = &threshold
	}

	query := strings.Join(c.Args().Slice(), " ")
	results, err := service.Query(context.Background(), core.ID(c.Uint64("index")), query, opts)
	if err != nil {
		return err
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: '%s' (%d)[%0.3f]\n", i, summarize(hit.Text), hit.ChunkId, hit.Score)
	}
	return nil
}

func statusCommand(c *cli.Context) error {
	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()
	jobID := core.ID(c.Uint64("job"))
	job, err := service.JobStatus(ctx, jobID)
	if err != nil {
		return err
	}

	if c.Bool("watch") && !job.Status.Terminal() {
		for !job.Status.Terminal() {
			printProgress(job)
			time.Sleep(knowit.DefaultPollInterval)
			if job, err = service.JobStatus(ctx, jobID); err != nil {
				return err
			}
		}
		fmt.Fprintln(os.Stderr)
	}

	printJob(job)
	return nil
}

func listCommand(c *cli.Context) error {
	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()
	collections, err := service.ListCollections(ctx)
	if err != nil {
		return err
	}
	if len(collections) == 0 {
		fmt.Println("No collections")
		return nil
	}

	for _, collection := range collections {
		fmt.Printf("[%d] %s - %s - %d documents, %d chunks\n",
			collection.Id, collection.Name, collection.Status,
			collection.DocumentCount, collection.ChunkCount)
		indexes, err := service.ListIndexes(ctx, collection.Id)
		if err != nil {
			return err
		}
		for _, index := range indexes {
			fmt.Printf("    index [%d] %s - %s on %s - %s\n",
				index.Id, index.Name, index.Strategy, index.Store, index.Status)
		}
	}
	return nil
}

func showCommand(c *cli.Context) error {
	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	ctx := context.Background()
	collectionID := core.ID(c.Uint64("collection"))
	collection, err := service.GetCollection(ctx, collectionID)
	if err != nil {
		return err
	}

	fmt.Printf("Collection %d: %s\n", collection.Id, collection.Name)
	if collection.Description != "" {
		fmt.Printf("  Description: %s\n", collection.Description)
	}
	fmt.Printf("  Status:      %s\n", collection.Status)
	if collection.ErrorMessage != "" {
		fmt.Printf("  Error:       %s\n", collection.ErrorMessage)
	}
	fmt.Printf("  Chunking:    %d tokens, overlap %d\n",
		collection.Config.ChunkTokenSize, collection.Config.ChunkOverlap)
	fmt.Printf("  Documents:   %d\n", collection.DocumentCount)
	fmt.Printf("  Chunks:      %d\n", collection.ChunkCount)

	documents, err := service.ListDocuments(ctx, collectionID)
	if err != nil {
		return err
	}
	if len(documents) > 0 {
		fmt.Println("Documents:")
		for _, document := range documents {
			fmt.Printf("  [%d] %s\n", document.Id, document.Filename)
		}
	}

	indexes, err := service.ListIndexes(ctx, collectionID)
	if err != nil {
		return err
	}
	if len(indexes) > 0 {
		fmt.Println("Indexes:")
		for _, index := range indexes {
			fmt.Printf("  [%d] %s - %s on %s - %s\n",
				index.Id, index.Name, index.Strategy, index.Store, index.Status)
			if index.Strategy != core.StrategyFulltext {
				fmt.Printf("      %s/%s\n", index.EmbeddingProvider, index.EmbeddingModel)
			}
		}
	}

	history, err := service.ListJobs(ctx, collectionID)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		fmt.Println("Jobs:")
		for _, job := range history {
			fmt.Printf("  [%d] %s - %d/%d files", job.Id, job.Status, job.ProcessedFiles, job.TotalFiles)
			if job.ErrorMessage != "" {
				fmt.Printf(" - %s", job.ErrorMessage)
			}
			fmt.Println()
		}
	}
	return nil
}

func deleteCollectionCommand(c *cli.Context) error {
	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	collectionID := core.ID(c.Uint64("collection"))
	if err := service.DeleteCollection(context.Background(), collectionID, c.Bool("cascade")); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Deleted collection %d\n", collectionID)
	return nil
}

func deleteIndexCommand(c *cli.Context) error {
	service, err := openService(c)
	if err != nil {
		return err
	}
	defer service.Close()

	indexID := core.ID(c.Uint64("index"))
	if err := service.DeleteIndex(context.Background(), indexID); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Deleted index %d\n", indexID)
	return nil
}

func openService(c *cli.Context) (*knowit.Service, error) {
	service, err := knowit.Open(c.String("db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge base: %w", err)
	}
	return service, nil
}

func readInputs(paths []string) ([]parse.Input, error) {
	inputs := make([]parse.Input, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		inputs = append(inputs, parse.Input{
			Filename: filepath.Base(path),
			SourceId: path,
			Data:     data,
		})
	}
	return inputs, nil
}

func waitJob(ctx context.Context, service *knowit.Service, jobID core.ID) error {
	for {
		job, err := service.JobStatus(ctx, jobID)
		if err != nil {
			return err
		}
		printProgress(job)
		if job.Status.Terminal() {
			fmt.Fprintln(os.Stderr)
			if job.Status == core.JobFailed {
				return fmt.Errorf("job %d failed: %s", job.Id, job.ErrorMessage)
			}
			return nil
		}
		time.Sleep(progressPoll)
	}
}

func printProgress(job *core.Job) {
	fmt.Fprintf(os.Stderr, "\rProgress: %d/%d files (%.1f%%) - %s",
		job.ProcessedFiles+job.FailedFiles, job.TotalFiles, job.Progress*100, job.CurrentStep)
}

func printJob(job *core.Job) {
	fmt.Printf("Job %d: %s\n", job.Id, job.Status)
	fmt.Printf("  Collection: %d\n", job.CollectionId)
	if job.IndexId != 0 {
		fmt.Printf("  Index:      %d\n", job.IndexId)
	}
	fmt.Printf("  Files:      %d/%d processed, %d failed\n",
		job.ProcessedFiles, job.TotalFiles, job.FailedFiles)
	fmt.Printf("  Chunks:     %d/%d embedded\n", job.ProcessedChunks, job.TotalChunks)
	fmt.Printf("  Step:       %s\n", job.CurrentStep)
	if job.ErrorMessage != "" {
		fmt.Printf("  Error:      %s\n", job.ErrorMessage)
	}
}

func parseStrategy(value string) (core.SearchStrategy, error) {
	value = strings.ToLower(value)
	if value == "" {
		return core.StrategyVector, nil
	}
	strategy, err := core.ParseSearchStrategy(value)
	if err != nil {
		return 0, fmt.Errorf("invalid strategy %q: must be one of vector, fulltext, hybrid", value)
	}
	return strategy, nil
}

// summarize flattens a chunk to one line and truncates it for display.
func summarize(text string) string {
	flat := strings.Join(strings.Fields(text), " ")
	runes := []rune(flat)
	if len(runes) > 160 {
		return string(runes[:157]) + "..."
	}
	return flat
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
