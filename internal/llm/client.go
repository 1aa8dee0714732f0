// Package llm connects taskgraph to Claude: a task runner that performs each
// task with one Messages call, and a replan proposer that asks for
// replacement work.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// DefaultMaxTokens bounds each response.
const DefaultMaxTokens = 4096

// ErrNoAPIKey is returned when neither the config nor the environment has a key.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY is not set")

// Completer sends one prompt and returns the text of the reply.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Client wraps the Anthropic SDK client with token tracking.
type Client struct {
	inner     anthropic.Client
	model     anthropic.Model
	maxTokens int64
	tracker   *TokenTracker
}

// ClientConfig contains configuration for creating a new Client.
type ClientConfig struct {
	// Model is the Claude model to use. Empty means Sonnet 4.5.
	Model string
	// APIKey is the Anthropic API key. If empty, ANTHROPIC_API_KEY is used.
	APIKey    string
	MaxTokens int
	// UseAWSBedrock routes calls through AWS Bedrock with the default AWS
	// credential chain.
	UseAWSBedrock bool
	AWSRegion     string
	AWSProfile    string
}

// NewClient creates a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption
	if cfg.UseAWSBedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), loadOpts...))
	} else {
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, ErrNoAPIKey
		}
		opts = append(opts, option.WithAPIKey(key))
	}

	model := anthropic.Model(cfg.Model)
	if model == "" {
		model = anthropic.ModelClaudeSonnet4_5_20250929
	}
	if cfg.UseAWSBedrock {
		model = bedrockModel(model)
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Client{
		inner:     anthropic.NewClient(opts...),
		model:     model,
		maxTokens: maxTokens,
		tracker:   NewTokenTracker(),
	}, nil
}

// bedrockModel maps Anthropic model names to Bedrock cross-region
// inference profiles. Unknown names pass through.
func bedrockModel(model anthropic.Model) anthropic.Model {
	profiles := map[anthropic.Model]string{
		anthropic.ModelClaudeSonnet4_20250514:   "us.anthropic.claude-sonnet-4-20250514-v1:0",
		anthropic.ModelClaudeSonnet4_5_20250929: "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
		anthropic.ModelClaudeHaiku4_5_20251001:  "us.anthropic.claude-haiku-4-5-20251001-v1:0",
		anthropic.ModelClaudeOpus4_1_20250805:   "us.anthropic.claude-opus-4-1-20250805-v1:0",
		anthropic.ModelClaudeOpus4_5_20251101:   "us.anthropic.claude-opus-4-5-20251101-v1:0",
	}
	if p, ok := profiles[model]; ok {
		return anthropic.Model(p)
	}
	return model
}

// Model returns the model in use.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Tracker returns the token tracker for this client.
func (c *Client) Tracker() *TokenTracker {
	return c.tracker
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.inner.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("messages call: %w", err)
	}
	c.tracker.Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var b strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String(), nil
}

// TokenTracker tracks token usage across calls.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker creates a TokenTracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records the usage of one call.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns input and output tokens so far.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns the number of calls recorded.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Cost estimates the spend in USD at Sonnet list prices.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.inputTok)/1_000_000*3.0 + float64(t.outputTok)/1_000_000*15.0
}
