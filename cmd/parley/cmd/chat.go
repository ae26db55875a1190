package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parleyhq/parley/internal/events"
	"github.com/parleyhq/parley/internal/model"
	"github.com/parleyhq/parley/internal/thread"
)

var chatThreadID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive support conversation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return runChat(ctx)
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatThreadID, "thread", "", "resume an existing thread id")
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context) error {
	store := parleyApp.Store
	orch := parleyApp.Orchestrator

	if chatThreadID != "" {
		store.SelectThread(model.Thread{ID: chatThreadID})
		if err := orch.Attach(ctx, chatThreadID); err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
	} else {
		store.StartNewThread(ctx, parleyApp.Client)
	}

	// Print toasts and streamed message updates in the background.
	toasts := parleyApp.Broker.Subscribe(ctx, events.Toasts())
	go func() {
		for ev := range toasts {
			if ev.Err != "" {
				fmt.Fprintf(os.Stderr, "! %s (%s)\n", ev.Message, ev.Err)
			} else {
				fmt.Fprintf(os.Stderr, "* %s\n", ev.Message)
			}
		}
	}()
	go printUpdates(ctx)

	if draft := store.Draft(store.ThreadID()); draft != "" {
		fmt.Printf("(restored draft) %s\n", draft)
	}

	fmt.Println("Type a message, /handoff, /email <address>, or /quit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/handoff":
			orch.RequestHandoff(ctx)
			continue
		case strings.HasPrefix(line, "/email "):
			orch.SetNotificationEmail(ctx, strings.TrimPrefix(line, "/email "))
			continue
		}

		if err := orch.Send(ctx, line, thread.SendOptions{}); err != nil {
			if err == thread.ErrBusy {
				// Keep the text as a draft instead of dropping it.
				store.SetDraft(store.ThreadID(), line)
				fmt.Fprintln(os.Stderr, "still waiting on the previous reply; saved as draft")
			}
			continue
		}
		// The first send creates the thread; attach the subscription once an
		// id exists.
		if id := store.ThreadID(); id != "" && chatThreadID == "" {
			chatThreadID = id
			if err := orch.Attach(ctx, id); err != nil {
				fmt.Fprintf(os.Stderr, "failed to subscribe: %v\n", err)
			}
		}
	}
	return scanner.Err()
}

// printUpdates re-renders the conversation whenever the derived message list
// changes.
func printUpdates(ctx context.Context) {
	orch := parleyApp.Orchestrator
	var lastAssistant string
	for {
		select {
		case <-ctx.Done():
			return
		case <-orch.Updates():
		}
		msgs := orch.Messages()
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role != model.RoleAssistant {
				continue
			}
			if msgs[i].Text != lastAssistant {
				lastAssistant = msgs[i].Text
				fmt.Printf("\r%s\n> ", lastAssistant)
			}
			break
		}
	}
}
