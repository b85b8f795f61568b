// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive thinkchat REPL.
//
// The REPL reads input with history support (liner), streams model output to
// the terminal as it arrives, and exposes slash commands for conversation
// management. Reasoning text renders dim and italic ahead of the answer;
// answers are optionally rendered as markdown (glamour) when stdout is a
// terminal.
//
// # Key Types
//
//   - Repl: the interactive loop, wired to a store.Store
//   - ChatCLI: line input with persistent history
//
// # Usage
//
//	repl := cli.NewRepl(cfg, client, kv)
//	if err := repl.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package cli
