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
	"errors"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/docflow"
	"github.com/poiesic/docflow/ai"
	"github.com/poiesic/docflow/config"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docflow",
		Usage: "Document ingestion, enrichment and monitoring pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"DOCFLOW_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file if it exists",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				EnvVars: []string{"DOCFLOW_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides the config file)",
				EnvVars: []string{"DOCFLOW_DB"},
			},
			&cli.StringFlag{
				Name:    "provider",
				Usage:   "AI provider: openai or pattern (overrides the config file)",
				EnvVars: []string{"DOCFLOW_PROVIDER"},
			},
			&cli.StringFlag{
				Name:    "ai-host",
				Usage:   "OpenAI-compatible host for embeddings and extraction",
				EnvVars: []string{"DOCFLOW_AI_HOST"},
			},
			&cli.StringFlag{
				Name:    "embedding-model",
				Usage:   "Embedding model name",
				EnvVars: []string{"DOCFLOW_EMBEDDING_MODEL"},
			},
			&cli.StringFlag{
				Name:    "extractor-model",
				Usage:   "Entity extraction model name",
				EnvVars: []string{"DOCFLOW_EXTRACTOR_MODEL"},
			},
			&cli.StringFlag{
				Name:    "api-token",
				Usage:   "Bearer token for the AI host",
				EnvVars: []string{"DOCFLOW_API_TOKEN", "OPENAI_API_KEY"},
			},
		},
		Before: func(c *cli.Context) error {
			if err := loadEnv(c.String("env-file")); err != nil {
				return err
			}
			return setupLogger(c)
		},
		Commands: []*cli.Command{
			ingestCommand(),
			enrichCommand(),
			monitorCommand(),
			runCommand(),
			statusCommand(),
			dashboardCommand(),
			ackCommand(),
			corpusImportCommand(),
			reembedCommand(),
		},
	}
}

// loadEnv loads path into the environment. A missing file is not an error
// and variables already set are not overridden.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
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

// loadConfig reads the config file, if any, and applies global flag overrides.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadFile(path); err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	}

	var opts []config.Option
	if c.IsSet("db") {
		opts = append(opts, config.WithStoragePath(c.String("db")))
	}
	if c.IsSet("provider") {
		opts = append(opts, config.WithProvider(c.String("provider")))
	}

	var aiOpts []ai.ConfigOption
	if c.IsSet("ai-host") {
		aiOpts = append(aiOpts, ai.WithHost(c.String("ai-host")))
	}
	if c.IsSet("embedding-model") {
		aiOpts = append(aiOpts, ai.WithEmbeddingModel(c.String("embedding-model")))
	}
	if c.IsSet("extractor-model") {
		aiOpts = append(aiOpts, ai.WithExtractorModel(c.String("extractor-model")))
	}
	if c.IsSet("api-token") {
		aiOpts = append(aiOpts, ai.WithAPIToken(c.String("api-token")))
	}
	if len(aiOpts) > 0 {
		opts = append(opts, config.WithAIOptions(aiOpts...))
	}

	if err := cfg.Apply(opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openSystem builds a System from the global flags. Callers must Close it.
func openSystem(c *cli.Context) (*docflow.System, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	sys, err := docflow.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open docflow: %w", err)
	}
	return sys, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
