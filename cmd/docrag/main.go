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
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/poiesic/docrag/config"
	"github.com/poiesic/docrag/reindex"
	"github.com/poiesic/docrag/search"
	"github.com/urfave/cli/v2"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docrag",
		Usage: "Ingest documents and answer questions grounded on them",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"DOCRAG_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config file",
				Value:   config.DefaultFile,
				EnvVars: []string{"DOCRAG_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the database directory (overrides storage.path)",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest files matching the given glob patterns",
				ArgsUsage: "<pattern>...",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Document ID (single file only; generated when empty)",
					},
					&cli.StringFlag{
						Name:  "mime-type",
						Usage: "Force the MIME type instead of detecting it",
					},
					&cli.BoolFlag{
						Name:  "no-progress",
						Usage: "Disable the progress bar",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the indexed documents",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags:     append(queryFlags(), &cli.BoolFlag{Name: "stream", Aliases: []string{"s"}, Usage: "Stream the answer as it is generated"}),
			},
			{
				Name:      "search",
				Usage:     "List the chunks most similar to a query",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags:     queryFlags(),
			},
			{
				Name:   "list",
				Usage:  "List ingested documents",
				Action: listCommand,
			},
			{
				Name:      "get",
				Usage:     "Show one document",
				ArgsUsage: "<document-id>",
				Action:    getCommand,
			},
			{
				Name:      "delete",
				Usage:     "Delete a document with its chunks and stored text",
				ArgsUsage: "<document-id>",
				Action:    deleteCommand,
			},
			{
				Name:      "download",
				Usage:     "Write a document's redacted text",
				ArgsUsage: "<document-id>",
				Action:    downloadCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (default stdout)",
					},
				},
			},
			{
				Name:      "chunks",
				Usage:     "Print a document's chunks",
				ArgsUsage: "<document-id>",
				Action:    chunksCommand,
			},
			{
				Name:   "stats",
				Usage:  "Show vector index statistics",
				Action: statsCommand,
			},
			{
				Name:   "health",
				Usage:  "Probe storage and AI providers",
				Action: healthCommand,
			},
			{
				Name:      "summarize",
				Usage:     "Summarize a document",
				ArgsUsage: "<document-id>",
				Action:    summarizeCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "words",
						Usage: "Maximum summary length in words",
						Value: 200,
					},
				},
			},
			{
				Name:      "topics",
				Usage:     "Extract the main topics of a document",
				ArgsUsage: "<document-id>",
				Action:    topicsCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "count",
						Usage: "Number of topics",
						Value: 5,
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-chunk and re-embed every stored document",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to process in each batch",
						Value: reindex.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of documents reprocessed concurrently",
						Value: reindex.DefaultConfig().Workers,
					},
					&cli.StringSliceFlag{
						Name:  "status",
						Usage: "Only reprocess documents in this status (repeatable)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents when not on a terminal",
						Value: 10,
					},
				},
			},
		},
	}
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "max-results",
			Aliases: []string{"k"},
			Usage:   "Number of chunks to retrieve",
			Value:   search.DefaultMaxResults,
		},
		&cli.Float64Flag{
			Name:  "threshold",
			Usage: "Minimum similarity (default from config)",
		},
		&cli.StringSliceFlag{
			Name:  "doc",
			Usage: "Restrict retrieval to this document ID (repeatable)",
		},
	}
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
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

	logger := slog.New(slog.NewTextHandler(c.App.ErrWriter, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
