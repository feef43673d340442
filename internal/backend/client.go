package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"castgate/internal/domain"
	"castgate/internal/domain/ports"
)

const defaultTimeout = 30 * time.Second

// Client is the REST client for the chat-message backend: media metadata,
// block reads, control-surface messages, device descriptors and the update
// long-poll.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Config struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewClient(cfg Config) *Client {
	httpClient := cfg.Client
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:   strings.TrimSpace(cfg.Token),
		http:    httpClient,
	}
}

func (c *Client) GetMessage(ctx context.Context, id int64) (domain.MediaMessage, error) {
	var msg domain.MediaMessage
	err := c.getJSON(ctx, fmt.Sprintf("/messages/%d", id), nil, &msg)
	if err != nil {
		return domain.MediaMessage{}, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

func (c *Client) GetBlock(ctx context.Context, msg domain.MediaMessage, offset, limit int64) ([]byte, error) {
	params := url.Values{
		"offset": {strconv.FormatInt(offset, 10)},
		"limit":  {strconv.FormatInt(limit, 10)},
	}
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/messages/%d/block", msg.ID), params, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get block %d@%d: %w", msg.ID, offset, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return nil, fmt.Errorf("get block %d@%d: %w", msg.ID, offset, err)
	}

	block, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("get block %d@%d: %w", msg.ID, offset, err)
	}
	return block, nil
}

func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend health: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend health: HTTP %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) ReplyMessage(ctx context.Context, messageID, chatID int64, text string) error {
	payload := map[string]any{"chatId": chatID, "text": text}
	err := c.postJSON(ctx, fmt.Sprintf("/messages/%d/reply", messageID), payload, nil)
	if err != nil {
		return fmt.Errorf("reply to message %d: %w", messageID, err)
	}
	return nil
}

func (c *Client) SendControl(ctx context.Context, chatID, replyTo int64, text string, buttons [][]domain.Button) (domain.ControlMessage, error) {
	payload := map[string]any{
		"chatId":  chatID,
		"replyTo": replyTo,
		"text":    text,
		"buttons": buttons,
	}
	var msg domain.ControlMessage
	if err := c.postJSON(ctx, "/controls", payload, &msg); err != nil {
		return domain.ControlMessage{}, fmt.Errorf("send control message: %w", err)
	}
	return msg, nil
}

func (c *Client) EditControl(ctx context.Context, msg domain.ControlMessage, text string, buttons [][]domain.Button) error {
	payload := map[string]any{
		"chatId":  msg.ChatID,
		"text":    text,
		"buttons": buttons,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPatch, fmt.Sprintf("/controls/%d", msg.ID), nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("edit control message %d: %w", msg.ID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode == http.StatusNotModified {
		return domain.ErrNotModified
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("edit control message %d: HTTP %d", msg.ID, resp.StatusCode)
	}
	return nil
}

func (c *Client) ListDeviceDescriptors(ctx context.Context, userID int64) ([]domain.DeviceDescriptor, error) {
	var descriptors []domain.DeviceDescriptor
	err := c.getJSON(ctx, fmt.Sprintf("/users/%d/devices", userID), nil, &descriptors)
	if err != nil {
		return nil, fmt.Errorf("list devices for user %d: %w", userID, err)
	}
	return descriptors, nil
}

// PollUpdates long-polls for chat updates past the given offset. An empty
// slice means the poll timed out with nothing new.
func (c *Client) PollUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]domain.Update, error) {
	params := url.Values{
		"offset":  {strconv.FormatInt(offset, 10)},
		"timeout": {strconv.Itoa(int(timeout.Seconds()))},
	}
	var updates []domain.Update
	if err := c.getJSON(ctx, "/updates", params, &updates); err != nil {
		return nil, fmt.Errorf("poll updates: %w", err)
	}
	return updates, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, params url.Values, body io.Reader) (*http.Request, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

var (
	_ ports.MediaBackend = (*Client)(nil)
	_ ports.Messenger    = (*Client)(nil)
)

func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
