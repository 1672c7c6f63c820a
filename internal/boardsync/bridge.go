package boardsync

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Agent is an external service that edits a board out of band and replies
// with text for the user.
type Agent interface {
	SendCommand(ctx context.Context, boardID, message string) (string, error)
}

// Bridge runs agent commands and pulls in their effects. The agent writes
// straight to the durable store, bypassing broadcast, so every successful
// command ends in a Refresh, which also tells peers to refresh.
type Bridge struct {
	c      *Coordinator
	agent  Agent
	logger *zap.Logger
}

// NewBridge 에이전트 브리지 생성
func NewBridge(c *Coordinator, agent Agent) *Bridge {
	return &Bridge{c: c, agent: agent, logger: c.logger.Named("bridge")}
}

// Run sends message to the agent for this board and returns its reply. On an
// agent failure the error is returned for display and the store is untouched.
// A refresh failure after a successful command is returned along with the
// reply.
func (b *Bridge) Run(ctx context.Context, message string) (string, error) {
	reply, err := b.agent.SendCommand(ctx, b.c.boardID, message)
	if err != nil {
		b.logger.Warn("agent command failed", zap.Error(err))
		return "", err
	}

	if err := b.c.Refresh(ctx); err != nil {
		return reply, fmt.Errorf("refresh after agent command: %w", err)
	}
	return reply, nil
}
