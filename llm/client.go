package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Message roles on the chat wire.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one model invocation.
type Request struct {
	Model       *ModelConfig
	Task        TaskType
	Messages    []Message
	Temperature float64
	MaxTokens   int64

	// JSONMode asks the provider to constrain output to a JSON object.
	// Only honored when the model's capabilities advertise it.
	JSONMode bool

	// OnToken, when set, switches the invocation to streaming and receives
	// each content delta as it arrives.
	OnToken func(token string)
}

// Response is the outcome of a model invocation.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// Invoker abstracts model invocation so callers can be tested against a
// fake backend.
type Invoker interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

const (
	maxAttempts    = 4
	baseBackoff    = time.Second
	maxBackoff     = 30 * time.Second
	requestTimeout = 120 * time.Second

	defaultConcurrency = 2
	maxConcurrency     = 20
)

// Client invokes models over the OpenAI-compatible chat completions wire.
// All configured providers (OpenAI, DeepSeek, Ollama) speak it.
//
// The client caches one SDK handle per (api key, base URL) pair, bounds
// concurrent invocations with a global semaphore, retries transient errors
// with jittered exponential backoff, and records token usage in the ledger.
type Client struct {
	mu     sync.Mutex
	cache  map[string]openai.Client
	sem    *semaphore.Weighted
	ledger *Ledger
	logger *zap.Logger
}

// NewClient creates a client. Concurrency is read from LLM_CONCURRENCY
// (default 2, clamped to [1, 20]). The ledger may be nil, in which case a
// private one is created.
func NewClient(ledger *Ledger, logger *zap.Logger) *Client {
	if ledger == nil {
		ledger = NewLedger()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cache:  make(map[string]openai.Client),
		sem:    semaphore.NewWeighted(int64(concurrencyLimit())),
		ledger: ledger,
		logger: logger,
	}
}

func concurrencyLimit() int {
	limit := defaultConcurrency
	if raw := os.Getenv("LLM_CONCURRENCY"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxConcurrency {
		limit = maxConcurrency
	}
	return limit
}

// Ledger returns the client's usage ledger.
func (c *Client) Ledger() *Ledger { return c.ledger }

// Complete invokes the model, retrying transient failures. When OnToken is
// set the invocation streams and usage is taken from the final usage frame.
func (c *Client) Complete(ctx context.Context, req Request) (Response, error) {
	if req.Model == nil {
		return Response{}, &ModelError{Message: "request has no model"}
	}

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return Response{}, err
	}
	defer c.sem.Release(1)

	sdk := c.clientFor(req.Model)
	params := c.buildParams(req)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, baseBackoff, maxBackoff)
			c.logger.Warn("retrying model invocation",
				zap.String("model", req.Model.ID),
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}

		var resp Response
		var err error
		if req.OnToken != nil {
			resp, err = c.stream(ctx, sdk, params, req.OnToken)
		} else {
			resp, err = c.invoke(ctx, sdk, params)
		}
		if err == nil {
			resp.Model = req.Model.ID
			c.ledger.Record(req.Model.ID, req.Task, resp.PromptTokens, resp.CompletionTokens)
			return resp, nil
		}

		lastErr = err
		if !IsTransient(err) {
			break
		}
	}

	return Response{}, &ModelError{
		Model:   req.Model.ID,
		Message: "invocation failed: " + lastErr.Error(),
		Cause:   lastErr,
	}
}

func (c *Client) invoke(ctx context.Context, sdk openai.Client, params openai.ChatCompletionNewParams) (Response, error) {
	completion, err := sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return Response{}, err
	}
	if len(completion.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}
	return Response{
		Text:             completion.Choices[0].Message.Content,
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
	}, nil
}

func (c *Client) stream(ctx context.Context, sdk openai.Client, params openai.ChatCompletionNewParams, onToken func(string)) (Response, error) {
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := sdk.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		text  strings.Builder
		usage openai.CompletionUsage
	)
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				text.WriteString(delta)
				onToken(delta)
			}
		}
		// The usage frame arrives last, after the final content chunk.
		if chunk.Usage.TotalTokens > 0 {
			usage = chunk.Usage
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, err
	}
	if text.Len() == 0 {
		return Response{}, ErrEmptyResponse
	}
	return Response{
		Text:             text.String(),
		PromptTokens:     int(usage.PromptTokens),
		CompletionTokens: int(usage.CompletionTokens),
	}, nil
}

func (c *Client) buildParams(req Request) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case RoleAssistant:
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Model.ModelName),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(req.MaxTokens)
	}
	if req.JSONMode && req.Model.Capabilities.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params
}

// clientFor returns a cached SDK handle for the model's endpoint.
func (c *Client) clientFor(model *ModelConfig) openai.Client {
	key := model.APIKey + "|" + model.BaseURL

	c.mu.Lock()
	defer c.mu.Unlock()

	if sdk, ok := c.cache[key]; ok {
		return sdk
	}

	opts := []option.RequestOption{
		option.WithAPIKey(model.APIKey),
		option.WithRequestTimeout(requestTimeout),
	}
	if model.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(model.BaseURL))
	}
	sdk := openai.NewClient(opts...)
	c.cache[key] = sdk
	return sdk
}

// computeBackoff returns the delay before a retry: exponential in the
// attempt number, capped, plus jitter to spread concurrent retries.
func computeBackoff(attempt int, base, max time.Duration) time.Duration {
	delay := base * (1 << attempt)
	if delay > max {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- retry jitter, not security-sensitive
	return delay + jitter
}

// Structured invokes the model and decodes the response into T.
//
// The schema of T is rendered into the system message so prompt-guided
// providers produce the right shape, and JSON mode is requested when the
// model supports it. Responses that fail to parse go through one repair
// pass; responses that echo the schema definition are cleaned or rejected.
func Structured[T any](ctx context.Context, inv Invoker, req Request) (*T, error) {
	schema, err := SchemaFor[T]()
	if err != nil {
		return nil, err
	}

	hint := SchemaPrompt(schema)
	req.Messages = appendToSystem(req.Messages, hint)
	req.JSONMode = true

	resp, err := inv.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, err := decodePayload(resp.Text)
	if err != nil {
		return nil, &ModelError{Model: resp.Model, Message: "unparseable structured response", Cause: err}
	}

	out := new(T)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return nil, &ModelError{Model: resp.Model, Message: "response does not match expected structure", Cause: err}
	}
	return out, nil
}

// decodePayload parses a model response into a JSON object, repairing and
// de-echoing as needed.
func decodePayload(text string) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		repaired := RepairJSON(text)
		if err := json.Unmarshal([]byte(repaired), &payload); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	}

	cleaned, pureEcho := DetectSchemaEcho(payload)
	if pureEcho {
		return nil, ErrSchemaEcho
	}
	return cleaned, nil
}

// appendToSystem appends text to the first system message, or prepends a
// new system message when there is none.
func appendToSystem(messages []Message, text string) []Message {
	out := make([]Message, len(messages))
	copy(out, messages)
	for i := range out {
		if out[i].Role == RoleSystem {
			out[i].Content = out[i].Content + "\n\n" + text
			return out
		}
	}
	return append([]Message{{Role: RoleSystem, Content: text}}, out...)
}
