package cmd

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/nimec77/deepseek-json/frontend/cli/pkg/terminal"
)

type OutputFormat string

const (
	OutputFormatPretty OutputFormat = "pretty"
	OutputFormatJSON   OutputFormat = "json"
	OutputFormatYAML   OutputFormat = "yaml"
)

func (e *OutputFormat) String() string {
	if e == nil || *e == "" {
		return string(OutputFormatPretty)
	}
	return string(*e)
}

func (e *OutputFormat) Set(v string) error {
	switch v {
	case "pretty", "json", "yaml":
		*e = OutputFormat(v)
		return nil
	default:
		return errors.New(`must be one of "pretty", "json", or "yaml"`)
	}
}

func (e *OutputFormat) Type() string {
	return "format"
}

func addOutputFlag(cmd *cobra.Command, format *OutputFormat) {
	*format = OutputFormatPretty
	cmd.Flags().VarP(format, "output", "o", "output format (pretty, json, yaml)")
}

// writeData prints v as JSON or YAML. It reports false for the pretty format,
// which every command renders on its own.
func writeData(w io.Writer, format OutputFormat, v any) (bool, error) {
	switch format {
	case OutputFormatJSON:
		return true, terminal.WriteJSON(w, v)
	case OutputFormatYAML:
		return true, terminal.WriteYAML(w, v)
	default:
		return false, nil
	}
}
