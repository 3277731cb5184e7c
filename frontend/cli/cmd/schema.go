package cmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/backend/taskfinisher"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/terminal"
)

var schemaTypes = map[string]func() any{
	"artifact":   func() any { return &taskfinisher.Artifact{} },
	"clarifying": func() any { return &taskfinisher.ClarifyingPayload{} },
	"answers":    func() any { return &taskfinisher.AnswersPayload{} },
	"response":   func() any { return &model.StructuredResponse{} },
}

func schemaNames() []string {
	names := make([]string, 0, len(schemaTypes))
	for name := range schemaTypes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func NewSchemaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema <artifact|clarifying|answers|response>",
		Short: "Print the JSON Schema of a payload exchanged with the model",
		Long: `Print the JSON Schema of a payload exchanged with the model.

Fields listed as required must be present and not null in model replies.`,
		Example: `  # Schema of the final technical specification
  deepseek-json schema artifact`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: schemaNames(),
		GroupID:   "system",
		RunE: func(cmd *cobra.Command, args []string) error {
			newValue, ok := schemaTypes[args[0]]
			if !ok {
				return fmt.Errorf("unknown schema %q, must be one of: %s", args[0], strings.Join(schemaNames(), ", "))
			}

			reflector := &jsonschema.Reflector{}
			return terminal.WriteJSON(cmd.OutOrStdout(), reflector.Reflect(newValue()))
		},
	}

	return cmd
}
