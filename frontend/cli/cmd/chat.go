package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/fail"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/terminal"
)

func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively and get structured JSON answers",
		Long: `Start an interactive session. Every question is answered with a structured
response card (title, description, content, category, timestamp, confidence).

Type /quit or /exit to leave. Ctrl+C while a request is running cancels only that
request; Ctrl+C at the prompt ends the session.`,
		Example: `  # Start a session with the default model
  deepseek-json chat

  # Use a cooler temperature for more predictable answers
  deepseek-json chat --temperature 0.2`,
		Args:    cobra.NoArgs,
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd)
		},
	}

	return cmd
}

func runChat(cmd *cobra.Command) error {
	provider, err := newProvider(cmd)
	if err != nil {
		return err
	}

	// Interrupts are handled per phase below, so the session must outlive a
	// cancelled command context.
	base := context.WithoutCancel(cmd.Context())
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	session := &chatSession{
		querier:    provider,
		reader:     terminal.NewLineReader(cmd.InOrStdin()),
		out:        cmd.OutOrStdout(),
		status:     cmd.ErrOrStderr(),
		interrupts: interrupts,
	}

	cfg := provider.Config()
	fmt.Fprintln(session.out, figure.NewFigure("deepseek", "standard", true).String())
	fmt.Fprintf(session.out, "%s Connected to %s using %s. Type /quit or /exit to leave.\n", terminal.InfoSymbol, cfg.BaseURL, cfg.Model)

	return session.run(base)
}

type chatSession struct {
	querier    model.StructuredQuerier
	reader     *terminal.LineReader
	out        io.Writer
	status     io.Writer
	interrupts <-chan os.Signal
}

func (s *chatSession) run(ctx context.Context) error {
	for {
		input, err := s.readQuestion(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			fmt.Fprintf(s.out, "\n%s\n", "Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}

		if input == "" {
			continue
		}
		if terminal.IsQuitCommand(input) {
			fmt.Fprintln(s.out, "Goodbye!")
			return nil
		}

		s.ask(ctx, input)
	}
}

func (s *chatSession) readQuestion(ctx context.Context) (string, error) {
	readCtx, cancel := withInterrupt(ctx, s.interrupts)
	defer cancel()

	return s.reader.Ask(readCtx, s.out, "\nEnter your question: ")
}

func (s *chatSession) ask(ctx context.Context, input string) {
	requestCtx, cancel := withInterrupt(ctx, s.interrupts)
	defer cancel()

	response, err := terminal.SpinnerFunc(requestCtx, s.status, "Sending request to DeepSeek...",
		func(ctx context.Context) (*model.StructuredResponse, error) {
			return s.querier.SendRequest(ctx, input)
		},
	)
	if err != nil {
		if requestCtx.Err() != nil && ctx.Err() == nil {
			fmt.Fprintf(s.out, "%s %s\n", terminal.WarningSymbol, "Request cancelled.")
			return
		}
		slog.Error("chat request failed", "error", err)
		fmt.Fprintln(s.out, fail.HandleError(err))
		return
	}

	terminal.RenderStructuredResponse(s.out, response)
}

// withInterrupt returns a context that is cancelled by the next value on
// interrupts.
func withInterrupt(parent context.Context, interrupts <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-interrupts:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
