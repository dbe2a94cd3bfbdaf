package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"storemodel/internal/format"
	"storemodel/internal/model"
)

// APIError surfaces non-2xx responses from the server.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

//nolint:errorlint
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

var ErrNotFound = errors.New("not found")

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

type Capacity struct {
	Used      int `json:"used"`
	Total     int `json:"total"`
	Remaining int `json:"remaining"`
}

type ApplyResult struct {
	Outcome  string   `json:"outcome"`
	Detail   string   `json:"detail"`
	Capacity Capacity `json:"capacity"`
}

type Entry struct {
	Key   int    `json:"key"`
	Value []byte `json:"value"`
}

// Session is one oracle session on the server. It satisfies engine.Driver, so
// a remote oracle can itself be checked against a local model.
type Session struct {
	ID     uuid.UUID
	Format format.Config
	c      *Client
}

// NewSession creates a session. A nil override uses the server's default
// format.
func (c *Client) NewSession(ctx context.Context, override *format.Config) (*Session, error) {
	var body any
	if override != nil {
		body = override
	}
	var resp struct {
		ID     uuid.UUID     `json:"id"`
		Format format.Config `json:"format"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", body, http.StatusCreated, &resp); err != nil {
		return nil, err
	}
	return &Session{ID: resp.ID, Format: resp.Format, c: c}, nil
}

// Close deletes the session.
func (s *Session) Close(ctx context.Context) error {
	return s.c.do(ctx, http.MethodDelete, s.path(""), nil, http.StatusNoContent, nil)
}

// ApplyRaw sends op and returns the oracle's full answer.
func (s *Session) ApplyRaw(ctx context.Context, op model.Operation) (ApplyResult, error) {
	var res ApplyResult
	err := s.c.do(ctx, http.MethodPost, s.path("/apply"), model.ToWire(op), http.StatusOK, &res)
	return res, err
}

// Apply sends op and maps the outcome back to the model's errors.
func (s *Session) Apply(ctx context.Context, op model.Operation) error {
	res, err := s.ApplyRaw(ctx, op)
	if err != nil {
		return err
	}
	outcome, err := model.ParseOutcome(res.Outcome)
	if err != nil {
		return err
	}
	if err := outcome.Err(); err != nil {
		return fmt.Errorf("%w: %s", err, res.Detail)
	}
	return nil
}

func (s *Session) Content(ctx context.Context) (map[int][]byte, error) {
	var entries []Entry
	if err := s.c.do(ctx, http.MethodGet, s.path("/content"), nil, http.StatusOK, &entries); err != nil {
		return nil, err
	}
	out := make(map[int][]byte, len(entries))
	for _, e := range entries {
		out[e.Key] = e.Value
	}
	return out, nil
}

// Get returns ErrNotFound for an absent key.
func (s *Session) Get(ctx context.Context, key int) ([]byte, error) {
	var e Entry
	if err := s.c.do(ctx, http.MethodGet, s.path(fmt.Sprintf("/content/%d", key)), nil, http.StatusOK, &e); err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (s *Session) Capacity(ctx context.Context) (Capacity, error) {
	var c Capacity
	err := s.c.do(ctx, http.MethodGet, s.path("/capacity"), nil, http.StatusOK, &c)
	return c, err
}

func (s *Session) path(suffix string) string {
	return "/v1/sessions/" + s.ID.String() + suffix
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func newAPIError(status int, body []byte) error {
	if status == http.StatusNotFound {
		return ErrNotFound
	}
	return &APIError{
		StatusCode: status,
		Body:       string(body),
	}
}
