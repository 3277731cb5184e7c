package fail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimec77/deepseek-json/backend/model"
	"github.com/nimec77/deepseek-json/backend/taskfinisher"
	"github.com/nimec77/deepseek-json/frontend/cli/pkg/terminal"
)

type UserError struct {
	Cause       error
	UserMessage string
	Solutions   []string
	TechDetails string
}

func (e *UserError) Error() string {
	var msg strings.Builder

	msg.WriteString(fmt.Sprintf("%s %s\n\n", terminal.ErrorSymbol, terminal.Bold(e.UserMessage)))

	if len(e.Solutions) > 0 {
		msg.WriteString(fmt.Sprintf("%s Try these solutions:\n", terminal.InfoSymbol))
		for i, solution := range e.Solutions {
			msg.WriteString(fmt.Sprintf("  %d. %s\n", i+1, solution))
		}
		msg.WriteString("\n")
	}

	if e.TechDetails != "" {
		msg.WriteString(fmt.Sprintf("Technical details: %s\n", e.TechDetails))
	}

	return msg.String()
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// Hint is the remediation shown for a classified failure.
type Hint struct {
	Message   string
	Solutions []string
}

// HintTable maps each error kind to its remediation. Presentation can be
// changed by replacing entries without touching classification.
type HintTable map[model.ErrorKind]func(pe *model.ProviderError) Hint

var Hints = HintTable{
	model.ErrorKindServerBusy: func(pe *model.ProviderError) Hint {
		solutions := []string{"Try again in a few minutes when server load is lower"}
		switch pe.StatusCode {
		case 429:
			return Hint{Message: "Rate limit exceeded. Please wait a moment before trying again.", Solutions: solutions}
		case 503:
			return Hint{Message: "Service temporarily unavailable. Please try again later.", Solutions: solutions}
		case 502, 504:
			return Hint{Message: "Server gateway error. Please try again in a few moments.", Solutions: solutions}
		default:
			return Hint{Message: "DeepSeek servers are currently busy. Please try again in a few moments.", Solutions: solutions}
		}
	},
	model.ErrorKindNetwork: func(pe *model.ProviderError) Hint {
		return Hint{
			Message:   "Network connection failed. Please check your internet connection and try again.",
			Solutions: []string{"Check your internet connection and firewall settings", "Verify --base-url points to a reachable endpoint"},
		}
	},
	model.ErrorKindTimeout: func(pe *model.ProviderError) Hint {
		return Hint{
			Message:   fmt.Sprintf("Request timed out after %d seconds. The server might be overloaded.", pe.TimeoutSeconds),
			Solutions: []string{"Try again later", "Raise the limit with --timeout or DEEPSEEK_TIMEOUT"},
		}
	},
	model.ErrorKindAPI: func(pe *model.ProviderError) Hint {
		switch pe.StatusCode {
		case 401:
			return Hint{
				Message:   "Authentication failed. The API key was rejected.",
				Solutions: []string{"Check your DEEPSEEK_API_KEY environment variable", "Store a new key with 'deepseek-json auth set'"},
			}
		case 403:
			return Hint{
				Message:   "Access denied. Your API key may not have sufficient permissions.",
				Solutions: []string{"Check the permissions of your API key"},
			}
		default:
			return Hint{
				Message:   fmt.Sprintf("API error (%d). Please try again later.", pe.StatusCode),
				Solutions: []string{"Check the DeepSeek API documentation for more details"},
			}
		}
	},
	model.ErrorKindParse: func(pe *model.ProviderError) Hint {
		return Hint{
			Message:   "Failed to parse server response. Please try again.",
			Solutions: []string{"The server response was unexpected. Try rephrasing your query"},
		}
	},
	model.ErrorKindConfig: func(pe *model.ProviderError) Hint {
		return Hint{
			Message:   fmt.Sprintf("Configuration error: %s", pe.Detail),
			Solutions: []string{"Check your environment variables and configuration"},
		}
	},
}

func (h HintTable) Lookup(pe *model.ProviderError) Hint {
	if hint, ok := h[pe.Kind]; ok {
		return hint(pe)
	}
	return Hint{Message: pe.Message()}
}

func FromProviderError(pe *model.ProviderError) *UserError {
	hint := Hints.Lookup(pe)
	return &UserError{
		Cause:       pe,
		UserMessage: hint.Message,
		Solutions:   hint.Solutions,
		TechDetails: pe.Error(),
	}
}

// HandleError converts err into a UserError where the failure is known.
// Other errors are returned unchanged.
func HandleError(err error) error {
	if err == nil {
		return nil
	}

	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr
	}

	var capErr *taskfinisher.RoundCapError
	if errors.As(err, &capErr) {
		return &UserError{
			Cause:       err,
			UserMessage: "Reached maximum clarification rounds. The latest assistant output is shown above.",
			Solutions:   []string{"Answer the remaining questions in a new run", "Allow more rounds with --max-rounds"},
			TechDetails: err.Error(),
		}
	}

	var parseErr *taskfinisher.ParseFailureError
	if errors.As(err, &parseErr) {
		return &UserError{
			Cause:       err,
			UserMessage: "The assistant reply did not match the negotiation protocol.",
			Solutions:   []string{"Run the task again", "Lower --temperature for more predictable output"},
			TechDetails: err.Error(),
		}
	}

	var pe *model.ProviderError
	if errors.As(err, &pe) {
		return FromProviderError(pe)
	}

	if errors.Is(err, context.Canceled) {
		return &UserError{Cause: err, UserMessage: "Operation cancelled."}
	}

	return err
}
