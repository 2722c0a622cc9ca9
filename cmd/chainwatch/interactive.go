package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"chainwatch/internal/chat"
)

// runChatREPL runs a readline loop over one chat session.
func runChatREPL(ctx context.Context, cli *CLI, session *chat.Session) error {
	fmt.Fprintln(cli.out, "Ask about the current assessment. Type 'exit' to quit, '/history' to reprint the conversation.")
	cli.print(cli.format.Suggestions(session.Suggestions()))

	var historyFile string
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".chainwatch", "chat_history")
		_ = os.MkdirAll(filepath.Dir(historyFile), 0o755)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "> ",
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		UniqueEditLine:    true,
		Stdin:             readline.NewCancelableStdin(os.Stdin),
		Stdout:            os.Stdout,
		Stderr:            os.Stderr,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	for {
		input, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(input) == 0 {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		switch input {
		case "":
			continue
		case "exit", "quit", "q":
			return nil
		case "/history":
			cli.print(cli.format.Transcript(session.Transcript()))
			continue
		}

		if _, err := session.Send(ctx, input); err != nil {
			cli.print(cli.format.Error(err))
			continue
		}
		transcript := session.Transcript()
		cli.print("\n" + cli.format.Reply(transcript[len(transcript)-1].Content) + "\n")
	}
}
