package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	// 요청 타임아웃
	DefaultTimeout = 60 * time.Second

	commandPath = "/api/ai/command"
)

// CommandRequest AI 명령 요청
type CommandRequest struct {
	BoardID string `json:"board_id"`
	Message string `json:"message"`
}

// CommandResponse AI 명령 응답
type CommandResponse struct {
	Response string `json:"response"`
}

// CommandError is a failed agent call. Detail is the agent's own message when
// it sent one and is meant to be shown to the user.
type CommandError struct {
	Status int
	Detail string
}

func (e *CommandError) Error() string {
	if e.Status == 0 {
		return e.Detail
	}
	return fmt.Sprintf("ai command failed (%d): %s", e.Status, e.Detail)
}

// Client AI 에이전트 HTTP 클라이언트
type Client struct {
	baseURL string
	timeout time.Duration
}

// NewClient creates a client for the agent at baseURL. timeout <= 0 uses DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
}

// SendCommand asks the agent to act on a board and returns its text reply.
// The agent writes to the durable store directly; callers refresh afterwards.
func (c *Client) SendCommand(ctx context.Context, boardID, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", &CommandError{Detail: "message is empty"}
	}

	type result struct {
		code int
		body []byte
		errs []error
	}
	done := make(chan result, 1)

	agent := fiber.Post(c.baseURL + commandPath)
	agent.Timeout(c.timeoutFor(ctx))
	agent.JSON(CommandRequest{BoardID: boardID, Message: message})
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return "", &CommandError{Detail: fmt.Sprintf("ai server unreachable: %v", err)}
	}

	go func() {
		code, body, errs := agent.Bytes()
		done <- result{code, body, errs}
	}()

	var res result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-done:
	}

	if len(res.errs) > 0 {
		return "", &CommandError{Detail: fmt.Sprintf("ai server unreachable: %v", errors.Join(res.errs...))}
	}
	if res.code < 200 || res.code >= 300 {
		return "", &CommandError{Status: res.code, Detail: errorDetail(res.code, res.body)}
	}

	var out CommandResponse
	if err := json.Unmarshal(res.body, &out); err != nil {
		return "", fmt.Errorf("decode ai response: %w", err)
	}
	return out.Response, nil
}

func (c *Client) timeoutFor(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < c.timeout {
			return left
		}
	}
	return c.timeout
}

// errorDetail extracts {"detail": "..."} from an error body.
func errorDetail(code int, body []byte) string {
	var e struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return "AI server error"
	}
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("AI request failed: %d", code)
}
