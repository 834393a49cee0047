package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/ambermind/backend/internal/model/chat"
)

// ChainCompleter runs completions through an eino chain wrapping a ChatModel.
type ChainCompleter struct {
	chain  compose.Runnable[[]*schema.Message, *schema.Message]
	logger *zap.Logger
}

// NewChainCompleter compiles the chat chain once; the result is safe for concurrent use.
func NewChainCompleter(ctx context.Context, chatModel model.BaseChatModel, logger *zap.Logger) (*ChainCompleter, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &ChainCompleter{
		chain:  runnable,
		logger: logger,
	}, nil
}

// Complete implements Completer.
func (c *ChainCompleter) Complete(ctx context.Context, req Request) (string, error) {
	var opts []compose.Option
	if req.MaxTokens > 0 {
		opts = append(opts, compose.WithChatModelOption(model.WithMaxTokens(req.MaxTokens)))
	}

	response, err := c.chain.Invoke(ctx, toSchemaMessages(req.Messages), opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}
	if response == nil {
		return "", fmt.Errorf("%w: empty chain output", ErrCompletionFormat)
	}

	c.logger.Debug("generated completion",
		zap.Int("messages", len(req.Messages)),
		zap.Int("length", len(response.Content)))
	return response.Content, nil
}

func toSchemaMessages(turns []chat.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case chat.RoleSystem:
			messages = append(messages, schema.SystemMessage(turn.Content))
		case chat.RoleUser:
			messages = append(messages, schema.UserMessage(turn.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		}
	}
	return messages
}
