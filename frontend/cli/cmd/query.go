package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/fail"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/terminal"
)

const defaultQueryParallelism = 4

type queryOptions struct {
	Parallel int
	Output   OutputFormat
}

type QueryResult struct {
	Query    string                    `json:"query" yaml:"query"`
	Response *model.StructuredResponse `json:"response" yaml:"response"`
}

func NewQueryCmd() *cobra.Command {
	var options queryOptions

	cmd := &cobra.Command{
		Use:   "query <question>... [flags]",
		Short: "Answer one or more questions with structured JSON responses",
		Long: `Answer each argument as a separate question. Questions are sent concurrently
and the results are printed in the order they were given.`,
		Example: `  # Ask a single question
  deepseek-json query "What is a goroutine?"

  # Ask several questions at once and print YAML
  deepseek-json query "What is a channel?" "What is a mutex?" --output yaml`,
		Args:    cobra.MinimumNArgs(1),
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			if options.Parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1, got %d", options.Parallel)
			}

			provider, err := newProvider(cmd)
			if err != nil {
				return err
			}

			results, err := terminal.SpinnerFunc(cmd.Context(), cmd.ErrOrStderr(), fmt.Sprintf("Sending %d request(s) to DeepSeek...", len(args)),
				func(ctx context.Context) ([]QueryResult, error) {
					return runQueries(ctx, provider, args, options.Parallel)
				},
				terminal.WithSuccessMsg(fmt.Sprintf("Received %d response(s)", len(args))),
				terminal.WithErrorMsg("Request failed"),
			)
			if err != nil {
				return fail.HandleError(err)
			}

			out := cmd.OutOrStdout()
			if handled, err := writeData(out, options.Output, results); handled {
				return err
			}

			for i, result := range results {
				fmt.Fprintf(out, "\n%s %s\n", terminal.ActionSymbol, terminal.Bold(fmt.Sprintf("Query %d: %s", i+1, result.Query)))
				terminal.RenderStructuredResponse(out, result.Response)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&options.Parallel, "parallel", "p", defaultQueryParallelism, "maximum number of requests in flight")
	addOutputFlag(cmd, &options.Output)

	return cmd
}

// runQueries answers every query with at most parallel requests in flight.
// The first failure cancels the queries that are still running.
func runQueries(ctx context.Context, querier model.StructuredQuerier, queries []string, parallel int) ([]QueryResult, error) {
	results := make([]QueryResult, len(queries))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, query := range queries {
		g.Go(func() error {
			response, err := querier.SendRequest(ctx, query)
			if err != nil {
				return &queryError{Index: i, Query: query, Err: err}
			}
			results[i] = QueryResult{Query: query, Response: response}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

type queryError struct {
	Index int
	Query string
	Err   error
}

func (e *queryError) Error() string {
	return fmt.Sprintf("query %d (%q): %s", e.Index+1, e.Query, e.Err)
}

func (e *queryError) Unwrap() error {
	return e.Err
}
