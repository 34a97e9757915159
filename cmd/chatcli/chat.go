package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/service"
	"ai-chat-be/pkg/events"
)

type turnFlags struct {
	session  string
	model    string
	thinking bool
	search   bool
}

func (f *turnFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.session, "session", "s", "", "Session id (default: start a new chat)")
	cmd.Flags().StringVarP(&f.model, "model", "m", "", "Model override")
	cmd.Flags().BoolVar(&f.thinking, "thinking", false, "Request thinking output")
	cmd.Flags().BoolVar(&f.search, "search", false, "Enable search grounding")
}

// options returns pointers only for flags the user set, so config defaults apply otherwise.
func (f *turnFlags) options(cmd *cobra.Command) (thinking, search *bool) {
	if cmd.Flags().Changed("thinking") {
		thinking = &f.thinking
	}
	if cmd.Flags().Changed("search") {
		search = &f.search
	}
	return thinking, search
}

func selectSession(ctx context.Context, svc service.IChatService, raw string) {
	if raw == "" {
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		fatalError(fmt.Errorf("invalid session id %q", raw))
	}
	if err := svc.RefreshSessions(ctx); err != nil {
		fatalError(err)
	}
	if _, err := svc.SelectSession(ctx, id); err != nil {
		fatalError(err)
	}
}

// streamPrinter writes the growing reply as timeline events arrive.
func streamPrinter(ctx context.Context, svc service.IChatService) (wait func(error)) {
	stream, err := container.Bus.Subscribe(ctx)
	if err != nil {
		fatalError(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		var streamID string
		printed := 0
		for event := range stream {
			data := event.Payload()
			switch event.EventType() {
			case events.TurnStarted:
				streamID, _ = data["message_id"].(string)
				printed = 0
			case events.TimelineChanged:
				if id, _ := data["message_id"].(string); id == "" || id != streamID {
					continue
				}
				printed = printDelta(ctx, svc, streamID, printed)
			case events.TurnCompleted:
				printDelta(ctx, svc, streamID, printed)
				fmt.Println()
				return
			case events.TurnFailed:
				fmt.Println()
				return
			}
		}
	}()
	return func(err error) {
		// Rejected requests never start a turn.
		if err != nil && !errors.Is(err, service.ErrTurnFailed) {
			return
		}
		select {
		case <-done:
		case <-ctx.Done():
		}
	}
}

func printDelta(ctx context.Context, svc service.IChatService, messageID string, printed int) int {
	for _, m := range svc.Snapshot(ctx).Messages {
		if m.Id == messageID && len(m.Content) > printed {
			fmt.Print(m.Content[printed:])
			return len(m.Content)
		}
	}
	return printed
}

func printTurn(resp *dto.TurnResponse) {
	reply := resp.Reply
	if reply.ThinkingProcess != nil {
		fmt.Printf("\n[thinking]\n%s\n", *reply.ThinkingProcess)
	}
	for i, s := range reply.Sources {
		fmt.Printf("  [%d] %s - %s\n", i+1, s.Title, s.URI)
	}
	for _, r := range resp.SuggestedReplies {
		fmt.Printf("  > %s\n", r)
	}
	fmt.Printf("session: %s\n", resp.SessionId)
}

func sendCmd() *cobra.Command {
	var flags turnFlags
	cmd := &cobra.Command{
		Use:   "send <text>",
		Short: "Send a message and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			svc := requireContainer(ctx).ChatService
			defer shutdown()

			selectSession(ctx, svc, flags.session)
			thinking, search := flags.options(cmd)

			wait := streamPrinter(ctx, svc)
			resp, err := svc.SendMessage(ctx, &dto.SendMessageRequest{
				Text:     strings.Join(args, " "),
				Thinking: thinking,
				Search:   search,
				Model:    flags.model,
			})
			wait(err)
			if err != nil {
				fatalError(err)
			}
			printTurn(resp)
		},
	}
	flags.register(cmd)
	return cmd
}

func regenerateCmd() *cobra.Command {
	var flags turnFlags
	cmd := &cobra.Command{
		Use:   "regenerate",
		Short: "Regenerate the last reply of a session",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			svc := requireContainer(ctx).ChatService
			defer shutdown()

			if flags.session == "" {
				fatalError(fmt.Errorf("--session is required"))
			}
			selectSession(ctx, svc, flags.session)
			thinking, search := flags.options(cmd)

			wait := streamPrinter(ctx, svc)
			resp, err := svc.Regenerate(ctx, &dto.RegenerateRequest{Thinking: thinking, Search: search, Model: flags.model})
			wait(err)
			if err != nil {
				fatalError(err)
			}
			printTurn(resp)
		},
	}
	flags.register(cmd)
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the messages of a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			svc := requireContainer(ctx).ChatService
			defer shutdown()

			selectSession(ctx, svc, args[0])
			snap := svc.Snapshot(ctx)
			for _, m := range snap.Messages {
				fmt.Printf("%-5s  %s\n", m.Role, m.Content)
			}
			if len(snap.PendingSuggestions) > 0 {
				fmt.Printf("suggested: %s\n", strings.Join(snap.PendingSuggestions, " | "))
			}
		},
	}
}

func summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <session-id>",
		Short: "Summarize a session",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			svc := requireContainer(ctx).ChatService
			defer shutdown()

			selectSession(ctx, svc, args[0])
			out, err := svc.Summarize(ctx)
			if err != nil {
				fatalError(err)
			}
			fmt.Println(out.Summary)
		},
	}
}

func translateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "translate <session-id> <message-id>",
		Short: "Translate one message (CJK to English, otherwise to Chinese)",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			svc := requireContainer(ctx).ChatService
			defer shutdown()

			selectSession(ctx, svc, args[0])
			out, err := svc.Translate(ctx, args[1])
			if err != nil {
				fatalError(err)
			}
			fmt.Fprintf(os.Stdout, "[%s] %s\n", out.Target, out.Text)
		},
	}
}
