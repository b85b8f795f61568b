// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive REPL for thinkchat.
//
// Interactive commands:
//   /help, /h           Show available commands
//   /new                Start a new conversation
//   /list, /ls          List conversations
//   /switch N           Switch to conversation N (index from /list, or id)
//   /delete [N]         Delete conversation N (default: active)
//   /think              Toggle reasoning display
//   /quit, /q           Exit
//   Ctrl+D              Exit
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/peterh/liner"

	"github.com/morganforge/thinkchat/internal/config"
	"github.com/morganforge/thinkchat/internal/llm"
	"github.com/morganforge/thinkchat/internal/model"
	"github.com/morganforge/thinkchat/internal/sse"
	"github.com/morganforge/thinkchat/internal/storage"
	"github.com/morganforge/thinkchat/internal/store"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for the REPL.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a ChatCLI with input history support.
func NewChatCLI() *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.loadHistory()
	return c
}

func (c *ChatCLI) loadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with history navigation.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and releases the terminal.
func (c *ChatCLI) Close() {
	if err := config.EnsureConfigDir(); err == nil {
		// SECURITY: history may contain prompts; owner read/write only
		if f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			c.line.WriteHistory(f)
			f.Close()
		}
	}
	c.line.Close()
}

// =============================================================================
// STREAM PRINTER TRANSPORT
// =============================================================================

// printingTransport wraps the real transport and prints streaming events as
// they arrive, before forwarding them to the store's callbacks.
type printingTransport struct {
	inner llm.Transport
	repl  *Repl
}

func (p *printingTransport) SendStreamMessage(ctx context.Context, history []llm.ChatMessage, cb llm.Callbacks) error {
	sawReasoning := false
	var answer strings.Builder

	wrapped := llm.Callbacks{
		OnReasoning: func(text string) {
			if p.repl.showReasoning && text != "" {
				sawReasoning = true
				fmt.Print(ReasoningStyle.Render(text))
			}
			if cb.OnReasoning != nil {
				cb.OnReasoning(text)
			}
		},
		OnContent: func(text string) {
			if sawReasoning {
				// Separate thinking from the answer.
				fmt.Print("\n\n")
				sawReasoning = false
			}
			if p.repl.renderMarkdown {
				answer.WriteString(text)
			} else {
				fmt.Print(text)
			}
			if cb.OnContent != nil {
				cb.OnContent(text)
			}
		},
		OnUsage: func(u sse.Usage) {
			if cb.OnUsage != nil {
				cb.OnUsage(u)
			}
		},
		OnComplete: func() {
			if p.repl.renderMarkdown {
				fmt.Print(renderMarkdown(answer.String()))
			}
			fmt.Println()
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
		},
		OnError: func(err error) {
			fmt.Println()
			fmt.Println(ErrorStyle.Render("error: " + err.Error()))
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	}
	return p.inner.SendStreamMessage(ctx, history, wrapped)
}

// =============================================================================
// REPL
// =============================================================================

// Repl drives the interactive chat loop against a single store.
type Repl struct {
	store *store.Store
	cfg   *config.Config
	input *ChatCLI

	showReasoning  bool
	renderMarkdown bool
}

// NewRepl wires the transport, store, and input handling together.
func NewRepl(cfg *config.Config, transport llm.Transport, kv storage.KV) *Repl {
	r := &Repl{
		cfg:            cfg,
		input:          NewChatCLI(),
		showReasoning:  cfg.UI.ShowReasoning,
		renderMarkdown: cfg.UI.Markdown && IsStdoutTTY(),
	}
	r.store = store.New(&printingTransport{inner: transport, repl: r}, kv)
	return r
}

// Store exposes the underlying store, mainly for the storage watcher hookup.
func (r *Repl) Store() *store.Store {
	return r.store
}

// Run loads saved conversations and loops until /quit or EOF.
func (r *Repl) Run(ctx context.Context) error {
	defer r.input.Close()

	r.store.LoadConversations()
	r.printWelcome()

	for {
		// liner counts prompt bytes for cursor math; ANSI styling breaks it.
		input, err := r.input.ReadInput("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				// Ctrl+C at the prompt clears the line, not the session.
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Println()
				return nil
			}
			return fmt.Errorf("input error: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := r.handleCommand(input); quit {
				return nil
			}
			continue
		}

		r.store.SendMessage(ctx, input)
	}
}

func (r *Repl) printWelcome() {
	fmt.Println(TitleStyle.Render("thinkchat"))
	conv := r.store.ActiveConversation()
	if conv != nil && len(conv.Messages) > 0 {
		fmt.Println(InfoStyle.Render(fmt.Sprintf("resumed %q (%d messages)", conv.Title, len(conv.Messages))))
	}
	fmt.Println(DimStyle.Render("type /help for commands"))
	fmt.Println()
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// parseCommand splits "/switch 2" into ("switch", "2").
func parseCommand(input string) (string, string) {
	input = strings.TrimPrefix(input, "/")
	cmd, arg, _ := strings.Cut(input, " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

// handleCommand runs one slash command. Returns true to exit the REPL.
func (r *Repl) handleCommand(input string) bool {
	cmd, arg := parseCommand(input)

	switch cmd {
	case "quit", "q", "exit":
		return true

	case "help", "h":
		r.printHelp()

	case "new":
		conv := r.store.CreateConversation()
		fmt.Println(InfoStyle.Render("started conversation " + conv.ID))

	case "list", "ls":
		fmt.Print(FormatConversationList(r.store.Conversations(), r.store.ActiveID()))

	case "switch":
		if conv := r.resolveConversation(arg); conv != nil {
			r.store.SwitchConversation(conv.ID)
			fmt.Println(InfoStyle.Render("switched to " + conv.Title))
		} else {
			fmt.Println(ErrorStyle.Render("no such conversation: " + arg))
		}

	case "delete", "del":
		target := r.store.ActiveConversation()
		if arg != "" {
			target = r.resolveConversation(arg)
		}
		if target == nil {
			fmt.Println(ErrorStyle.Render("no such conversation: " + arg))
			break
		}
		r.store.DeleteConversation(target.ID)
		fmt.Println(InfoStyle.Render("deleted " + target.Title))

	case "think":
		r.showReasoning = !r.showReasoning
		if r.showReasoning {
			fmt.Println(InfoStyle.Render("reasoning display on"))
		} else {
			fmt.Println(InfoStyle.Render("reasoning display off"))
		}

	default:
		fmt.Println(ErrorStyle.Render("unknown command: /" + cmd))
		r.printHelp()
	}
	return false
}

// resolveConversation accepts a 1-based index from /list output or a raw
// conversation id.
func (r *Repl) resolveConversation(arg string) *model.Conversation {
	convs := r.store.Conversations()
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= 1 && n <= len(convs) {
			return convs[n-1]
		}
		return nil
	}
	for _, c := range convs {
		if c.ID == arg {
			return c
		}
	}
	return nil
}

func (r *Repl) printHelp() {
	fmt.Println(InfoStyle.Render(`commands:
  /new            start a new conversation
  /list, /ls      list conversations
  /switch N       switch to conversation N (or id)
  /delete [N]     delete conversation N (default: active)
  /think          toggle reasoning display
  /quit, /q       exit`))
}

// =============================================================================
// CONVERSATION LIST FORMATTING
// =============================================================================

// listTitleWidth is the display column width for titles in /list output.
const listTitleWidth = 30

// FormatConversationList formats conversations for /list, one per line, the
// active one marked. Titles are padded by display width so CJK text lines up.
func FormatConversationList(convs []*model.Conversation, activeID string) string {
	if len(convs) == 0 {
		return "no conversations\n"
	}

	var sb strings.Builder
	for i, c := range convs {
		marker := "  "
		if c.ID == activeID {
			marker = ActiveStyle.Render("* ")
		}
		title := runewidth.Truncate(c.Title, listTitleWidth, "...")
		title = runewidth.FillRight(title, listTitleWidth)
		sb.WriteString(fmt.Sprintf("%s%2d  %s  %3d messages\n", marker, i+1, title, len(c.Messages)))
	}
	return sb.String()
}
