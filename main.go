// thinkchat - A terminal client for reasoning-model chat.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/morganforge/thinkchat/internal/cli"
	"github.com/morganforge/thinkchat/internal/config"
	"github.com/morganforge/thinkchat/internal/llm"
	"github.com/morganforge/thinkchat/internal/storage"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func main() {
	var (
		flagModel   = flag.String("model", "", "override the configured model")
		flagBaseURL = flag.String("base-url", "", "override the configured API base URL")
		flagBackend = flag.String("storage", "", "storage backend: file or sqlite")
		flagVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *flagVersion {
		fmt.Printf("thinkchat %s (%s, built %s)\n", Version, GitCommit, BuildDate)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// CLI flags override config and environment
	if *flagModel != "" {
		cfg.API.Model = *flagModel
	}
	if *flagBaseURL != "" {
		cfg.API.BaseURL = *flagBaseURL
	}
	if *flagBackend != "" {
		cfg.Storage.Backend = *flagBackend
	}

	if cfg.API.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: no API key configured")
		fmt.Fprintln(os.Stderr, "Set THINKCHAT_API_KEY or add api.api_key to "+configPathHint())
		os.Exit(1)
	}

	storagePath, err := cfg.StoragePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	kv, err := storage.Open(cfg.Storage.Backend, storagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer kv.Close()

	client := llm.NewClient(cfg.API.APIKey).
		WithBaseURL(cfg.API.BaseURL).
		WithModel(cfg.API.Model).
		WithTimeout(time.Duration(cfg.API.TimeoutSecs) * time.Second)

	repl := cli.NewRepl(cfg, client, kv)

	// Pick up writes from other thinkchat processes sharing the file backend.
	if cfg.Storage.Watch {
		if fileKV, ok := kv.(*storage.FileKV); ok {
			watcher, err := storage.NewWatcher(fileKV, repl.Store().LoadConversations)
			if err != nil {
				log.Printf("storage watcher unavailable: %v", err)
			} else {
				if err := watcher.Watch(); err != nil {
					log.Printf("storage watcher failed to start: %v", err)
				}
				defer watcher.Close()
			}
		}
	}

	if err := repl.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configPathHint() string {
	if path, err := config.ConfigPath(); err == nil {
		return path
	}
	return "~/.thinkchat/config.toml"
}
