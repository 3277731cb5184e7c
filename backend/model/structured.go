package model

import (
	"fmt"
	"time"

	"github.com/nimec77/deepseek-json/shared/strictjson"
)

const structuredSystemPrompt = "You are a helpful assistant that always responds with valid JSON in the specified format."

const structuredFormatPrompt = `Please respond with a JSON object containing the following fields:
{
  "title": "A concise title for the topic (string)",
  "description": "A brief description or summary (string)",
  "content": "The main content or detailed response (string)",
  "category": "Optional category classification (string or null)",
  "timestamp": "Current response timestamp: %s (string)",
  "confidence": "Optional confidence score between 0.0 and 1.0 (number or null)"
}

Make sure to provide valid JSON format in your response. Use the provided timestamp as the current response time.
Do not include any other text or comments in your response.`

// StructuredResponse is the answer shape requested by SendRequest.
type StructuredResponse struct {
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Content     string   `json:"content" yaml:"content"`
	Category    *string  `json:"category,omitempty" yaml:"category,omitempty"`
	Timestamp   *string  `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	Confidence  *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`
}

func structuredMessages(input string, now time.Time) []Message {
	format := fmt.Sprintf(structuredFormatPrompt, now.UTC().Format(time.RFC3339))
	return []Message{
		NewSystemMessage(structuredSystemPrompt),
		NewUserMessage(input + "\n\n" + format),
	}
}

func parseStructuredResponse(content string) (*StructuredResponse, error) {
	var response StructuredResponse
	if err := strictjson.Unmarshal([]byte(content), &response); err != nil {
		return nil, NewParseError(DeepSeekProviderName, "Failed to parse JSON response from DeepSeek", err)
	}
	return &response, nil
}
