package taskfinisher

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/nimec77/deepseek-json/backend/model"
)

// Exchanger sends a conversation and returns the raw assistant reply.
type Exchanger interface {
	Exchange(ctx context.Context, history []model.Message) (string, error)
}

// ChatExchange performs one unretried round trip per call. Retrying belongs
// to the caller, which can see the classified error kind.
type ChatExchange struct {
	invoker model.ModelInvoker
}

func NewChatExchange(invoker model.ModelInvoker) *ChatExchange {
	return &ChatExchange{invoker: invoker}
}

func (c *ChatExchange) Exchange(ctx context.Context, history []model.Message) (string, error) {
	start := time.Now()
	raw, err := c.invoker.InvokeModel(ctx, slices.Clone(history))
	if err != nil {
		slog.DebugContext(ctx, "chat exchange failed", "messages", len(history), "duration", time.Since(start), "error", err)
		return "", err
	}

	slog.DebugContext(ctx, "chat exchange completed", "messages", len(history), "duration", time.Since(start), "bytes", len(raw))
	return raw, nil
}

var _ Exchanger = (*ChatExchange)(nil)
