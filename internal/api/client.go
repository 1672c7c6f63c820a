// Package api is a client for the relay server's object API. It satisfies
// boardsync.Persister, so a headless client can sync a board without a
// database connection of its own.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"realtime-whiteboard/internal/model"
)

const DefaultTimeout = 10 * time.Second

// ErrNotFound is returned when the server has no object with the given id.
var ErrNotFound = errors.New("object not found")

// StatusError 서버 오류 응답
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("object api: %d %s", e.Status, e.Message)
}

// Client REST 객체 API 클라이언트
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
}

// NewClient creates a client for the server at baseURL authenticating with
// the bearer token. timeout <= 0 uses DefaultTimeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		timeout: timeout,
	}
}

func (c *Client) ListByBoard(ctx context.Context, boardID string) ([]model.BoardObject, error) {
	body, err := c.do(ctx, fiber.MethodGet, "/api/boards/"+url.PathEscape(boardID)+"/objects", nil)
	if err != nil {
		return nil, err
	}
	var objects []model.BoardObject
	if err := json.Unmarshal(body, &objects); err != nil {
		return nil, fmt.Errorf("decode objects: %w", err)
	}
	return objects, nil
}

func (c *Client) Insert(ctx context.Context, obj model.BoardObject) error {
	_, err := c.do(ctx, fiber.MethodPost, "/api/boards/"+url.PathEscape(obj.BoardID)+"/objects", obj)
	return err
}

func (c *Client) Update(ctx context.Context, id string, patch model.Patch) error {
	_, err := c.do(ctx, fiber.MethodPatch, "/api/objects/"+url.PathEscape(id), patch)
	return err
}

func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, fiber.MethodDelete, "/api/objects/"+url.PathEscape(id), nil)
	return err
}

// do runs one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	agent := fiber.AcquireAgent()
	req := agent.Request()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if c.token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	agent.Timeout(c.timeout)
	if payload != nil {
		agent.JSON(payload)
	}
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	type result struct {
		code int
		body []byte
		errs []error
	}
	done := make(chan result, 1)
	go func() {
		code, body, errs := agent.Bytes()
		done <- result{code, body, errs}
	}()

	var res result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-done:
	}

	if len(res.errs) > 0 {
		return nil, fmt.Errorf("%s %s: %w", method, path, errors.Join(res.errs...))
	}
	switch {
	case res.code == fiber.StatusNotFound:
		return nil, ErrNotFound
	case res.code < 200 || res.code >= 300:
		return nil, &StatusError{Status: res.code, Message: errorMessage(res.body)}
	}
	return res.body, nil
}

// errorMessage reads the server's {"error": "..."} body.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
