package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wingman/internal/logging"
)

func logger() *zerolog.Logger {
	return logging.Component("provider")
}

// Config configures an OpenAI-compatible chat completions endpoint
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	HTTPClient  *http.Client
}

// OpenAI talks to /chat/completions on any OpenAI-compatible server
// (OpenAI, Ollama, LM Studio, vLLM).
type OpenAI struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float64
	client      *http.Client
}

// NewOpenAI creates a client. An empty API key is only accepted for local
// endpoints.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if cfg.APIKey == "" && !isLocal(cfg.BaseURL) {
		return nil, ErrNoAPIKey
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}
	return &OpenAI{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      client,
	}, nil
}

func isLocal(baseURL string) bool {
	return strings.Contains(baseURL, "localhost") || strings.Contains(baseURL, "127.0.0.1")
}

// APIError is a non-2xx response from the endpoint
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider error (%d): %s", e.Status, e.Message)
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatToolCall struct {
	Index    *int   `json:"index,omitempty"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

type chatTool struct {
	Type     string `json:"type"`
	Function Tool   `json:"function"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		Delta   chatMessage `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *OpenAI) buildRequest(req Request, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = o.model
	}
	temp := req.Temperature
	if temp == nil {
		temp = o.temperature
	}

	out := chatRequest{Model: model, Temperature: temp, Stream: stream}
	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		cm := chatMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			var c chatToolCall
			c.ID = tc.ID
			c.Type = "function"
			c.Function.Name = tc.Name
			c.Function.Arguments = tc.Arguments
			cm.ToolCalls = append(cm.ToolCalls, c)
		}
		out.Messages = append(out.Messages, cm)
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, chatTool{Type: "function", Function: t})
	}
	return out
}

func (o *OpenAI) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	}
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// Invoke runs a non-streamed completion
func (o *OpenAI) Invoke(ctx context.Context, req Request) (string, error) {
	resp, err := o.post(ctx, o.buildRequest(req, false))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", &APIError{Status: resp.StatusCode, Message: out.Error.Message}
	}
	if len(out.Choices) == 0 {
		return "", errors.New("provider returned no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// Stream starts a streamed completion over server-sent events
func (o *OpenAI) Stream(ctx context.Context, req Request) (Stream, error) {
	resp, err := o.post(ctx, o.buildRequest(req, true))
	if err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &sseStream{
		body:    resp.Body,
		scanner: scanner,
		calls:   make(map[int]*ToolCall),
	}, nil
}

type sseStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	calls   map[int]*ToolCall
	done    bool
}

func (s *sseStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return s.finish()
		}

		var payload chatResponse
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			logger().Debug().Err(err).Msg("skipping malformed stream event")
			continue
		}
		if payload.Error != nil {
			s.done = true
			return Chunk{}, &APIError{Status: http.StatusOK, Message: payload.Error.Message}
		}
		if len(payload.Choices) == 0 {
			continue
		}

		delta := payload.Choices[0].Delta
		s.collect(delta.ToolCalls)
		if delta.Content != "" {
			return Chunk{Text: delta.Content}, nil
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.done = true
		return Chunk{}, err
	}
	return s.finish()
}

// collect merges tool call fragments, which arrive keyed by index
func (s *sseStream) collect(fragments []chatToolCall) {
	for i, f := range fragments {
		idx := i
		if f.Index != nil {
			idx = *f.Index
		}
		call, ok := s.calls[idx]
		if !ok {
			call = &ToolCall{}
			s.calls[idx] = call
		}
		if f.ID != "" {
			call.ID = f.ID
		}
		call.Name += f.Function.Name
		call.Arguments += f.Function.Arguments
	}
}

func (s *sseStream) finish() (Chunk, error) {
	s.done = true
	if len(s.calls) == 0 {
		return Chunk{}, io.EOF
	}

	indexes := make([]int, 0, len(s.calls))
	for idx := range s.calls {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	chunk := Chunk{}
	for _, idx := range indexes {
		chunk.ToolCalls = append(chunk.ToolCalls, *s.calls[idx])
	}
	s.calls = nil
	return chunk, nil
}

func (s *sseStream) Close() error {
	s.done = true
	return s.body.Close()
}
