package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/campus-assistant/backend/internal/analysis/search"
	"github.com/zhouzirui/campus-assistant/backend/internal/logging"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/model/knowledge"
	chatService "github.com/zhouzirui/campus-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/campus-assistant/backend/internal/service/conversation"
	"github.com/zhouzirui/campus-assistant/backend/internal/store"
)

const chatHelp = "Type a number to pick an option, 'back', 'home', or 'quit'. Anything else is a question."

func newChatCmd(opts *rootOptions) *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			kb, err := opts.knowledge()
			if err != nil {
				return err
			}

			logger := logging.NewWithWriter(logging.Config{Level: opts.logLevel, Pretty: true}, cmd.ErrOrStderr())
			ctx := logging.WithLogger(cmd.Context(), logger)

			st := store.NewMemoryStore()
			defer st.Close()

			svc := conversation.NewService(
				conversation.NewEngine(kb, search.FromKnowledge(kb)),
				chatService.NewService(st, kb),
			)

			repl := &chatREPL{
				svc:   svc,
				token: "cli-" + uuid.NewString(),
				delay: delay,
				in:    cmd.InOrStdin(),
				out:   cmd.OutOrStdout(),
			}
			return repl.run(ctx)
		},
	}

	cmd.Flags().DurationVar(&delay, "delay", 0, "typing delay before each bot reply, e.g. 1.5s")
	return cmd
}

type chatREPL struct {
	svc   *conversation.Service
	token string
	delay time.Duration
	in    io.Reader
	out   io.Writer

	// options are the last options shown; numbers select from them.
	options []knowledge.MenuOption
}

func (r *chatREPL) run(ctx context.Context) error {
	turn, err := r.svc.Start(ctx, r.token)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, chatHelp)
	if err := r.print(ctx, turn, false); err != nil {
		return err
	}

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}

		action, quit := r.parse(scanner.Text())
		if quit {
			return nil
		}
		if action.Type == "" {
			continue
		}

		turn, err := r.svc.Handle(ctx, r.token, action)
		if err != nil {
			return err
		}
		if err := r.print(ctx, turn, action.Type == conversation.ActionText); err != nil {
			return err
		}
	}
}

// parse maps a line of input to an action. An empty action means nothing to do.
func (r *chatREPL) parse(line string) (conversation.Action, bool) {
	line = strings.TrimSpace(line)

	switch strings.ToLower(line) {
	case "":
		return conversation.Action{}, false
	case "quit", "exit":
		return conversation.Action{}, true
	case "back":
		return conversation.Action{Type: conversation.ActionBack}, false
	case "home", "menu":
		return conversation.Action{Type: conversation.ActionHome}, false
	case "help", "?":
		fmt.Fprintln(r.out, chatHelp)
		return conversation.Action{}, false
	}

	if n, err := strconv.Atoi(line); err == nil {
		if n < 1 || n > len(r.options) {
			fmt.Fprintf(r.out, "pick a number between 1 and %d\n", len(r.options))
			return conversation.Action{}, false
		}
		return conversation.Action{Type: conversation.ActionSelect, Value: r.options[n-1].ActionKey()}, false
	}

	return conversation.Action{Type: conversation.ActionText, Value: line}, false
}

// print writes a turn's messages. Typed questions are not echoed back.
func (r *chatREPL) print(ctx context.Context, turn conversation.Turn, skipUser bool) error {
	for _, msg := range turn.Messages {
		if msg.Type == chat.MessageTypeUser {
			if !skipUser {
				fmt.Fprintf(r.out, "you: %s\n", msg.Content)
			}
			continue
		}

		if r.delay > 0 {
			fmt.Fprintln(r.out, "…")
			timer := time.NewTimer(r.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		fmt.Fprintf(r.out, "bot: %s\n", msg.Content)
		if len(msg.Options) > 0 {
			r.options = msg.Options
			printOptions(r.out, msg.Options)
		}
	}

	if len(turn.Breadcrumb) > 1 {
		fmt.Fprintf(r.out, "[%s]\n", strings.Join(turn.Breadcrumb, " > "))
	}
	return nil
}
