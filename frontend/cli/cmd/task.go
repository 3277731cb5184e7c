package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/backend/taskfinisher"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/fail"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/terminal"
)

type taskOptions struct {
	MaxQuestions int
	MaxRounds    int
	Output       OutputFormat
	Save         string
}

func NewTaskCmd() *cobra.Command {
	var options taskOptions

	cmd := &cobra.Command{
		Use:   "task [request] [flags]",
		Short: "Negotiate a technical specification through clarifying questions",
		Long: `Turn a free-form request into a technical specification artifact.

The model asks a few clarifying questions per round. Answer them one by one:
press Enter to skip a question, or type /proceed to let the model finalize with
what it has. The run ends when the model returns the final artifact or when the
round limit is reached.`,
		Example: `  # Start from a request given on the command line
  deepseek-json task "Build a crypto price tracker for web"

  # Allow more rounds and save the artifact
  deepseek-json task "Internal wiki search" --max-rounds 8 --save spec.json

  # Print the artifact as YAML
  deepseek-json task "CLI todo app" --output yaml`,
		Args:    cobra.MaximumNArgs(1),
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.MaxRounds < 1 {
				return fmt.Errorf("--max-rounds must be at least 1, got %d", options.MaxRounds)
			}

			provider, err := newProvider(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			// Keep stdout clean for machine readable output.
			interactive := out
			if options.Output != OutputFormatPretty {
				interactive = cmd.ErrOrStderr()
			}

			reader := terminal.NewLineReader(cmd.InOrStdin())
			request, err := resolveRequest(cmd.Context(), reader, interactive, args)
			if err != nil {
				return err
			}

			engine := taskfinisher.NewEngine(
				&spinnerExchanger{inner: taskfinisher.NewChatExchange(provider), out: cmd.ErrOrStderr()},
				terminal.NewAnswerPrompter(reader, interactive),
				taskfinisher.WithMaxRounds(options.MaxRounds),
				taskfinisher.WithMaxQuestions(options.MaxQuestions),
				taskfinisher.WithMetrics(getMetrics(cmd.Context())),
			)

			result, err := engine.Run(cmd.Context(), request)
			if err != nil {
				printRunFailure(out, err)
				return fail.HandleError(err)
			}

			if options.Save != "" {
				if err := saveArtifact(cmd.Context(), options.Save, result.Artifact); err != nil {
					return err
				}
				fmt.Fprintf(interactive, "%s Artifact saved to %s\n", terminal.SuccessSymbol, options.Save)
			}

			if handled, err := writeData(out, options.Output, result.Artifact); handled {
				return err
			}
			return terminal.RenderArtifact(out, result.Artifact, terminal.IsTerminal(out))
		},
	}

	cmd.Flags().IntVar(&options.MaxQuestions, "max-questions", 0, "questions per round announced to the model (0 uses the default of 3)")
	cmd.Flags().IntVar(&options.MaxRounds, "max-rounds", taskfinisher.DefaultMaxRounds, "maximum number of requests before giving up")
	cmd.Flags().StringVar(&options.Save, "save", "", "write the artifact as JSON to this path")
	addOutputFlag(cmd, &options.Output)

	return cmd
}

func resolveRequest(ctx context.Context, reader *terminal.LineReader, out io.Writer, args []string) (string, error) {
	if len(args) == 1 {
		if request := strings.TrimSpace(args[0]); request != "" {
			return request, nil
		}
	}

	fmt.Fprintf(out, "%s %s\n", terminal.TipSymbol, "Describe what you need (e.g., 'Build a crypto price tracker for web').")
	request, err := reader.Ask(ctx, out, "> ")
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if request == "" {
		return "", errors.New("a request is required")
	}
	return request, nil
}

func printRunFailure(out io.Writer, err error) {
	var capErr *taskfinisher.RoundCapError
	if errors.As(err, &capErr) {
		fmt.Fprintf(out, "\n%s %s\n", terminal.WarningSymbol, terminal.Warning(fmt.Sprintf("Reached maximum clarification rounds (%d). Latest assistant output:", capErr.Rounds)))
		fmt.Fprintln(out, capErr.Raw)
		return
	}

	var parseErr *taskfinisher.ParseFailureError
	if errors.As(err, &parseErr) {
		fmt.Fprintf(out, "\n%s %s\n", terminal.ErrorSymbol, parseErr.Err)
		fmt.Fprintf(out, "Raw output:\n%s\n", parseErr.Raw)
	}
}

func saveArtifact(ctx context.Context, path string, artifact *taskfinisher.Artifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode artifact: %w", err)
	}

	fs := getFileSystem(ctx)
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := fs.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to save artifact: %w", err)
	}
	return nil
}

// spinnerExchanger shows a spinner while the model is working on a round.
type spinnerExchanger struct {
	inner taskfinisher.Exchanger
	out   io.Writer
}

func (s *spinnerExchanger) Exchange(ctx context.Context, history []model.Message) (string, error) {
	return terminal.SpinnerFunc(ctx, s.out, "Waiting for DeepSeek...",
		func(ctx context.Context) (string, error) {
			return s.inner.Exchange(ctx, history)
		},
	)
}
