// Package llm talks to an OpenAI-compatible chat model to answer questions
// and summarize reviews.
package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrEmptyCompletion is returned when the model sends no choices.
var ErrEmptyCompletion = errors.New("model returned no completion")

const answerTemplate = `
You are an expert in answering questions about restaurants.

Here are some relevant reviews: {reviews}

Here is the question to answer: {question}

If you base your answer on the reviews, please provide a summary example of them. Do not make up any information.
Answer the question in a conversational tone, as if you were talking to a friend. Use emojis to make it more engaging.
If you don't have enough information to answer the question, say "I don't know" or "I can't answer that" and provide a reason why.
No preamble.
`

const summaryTemplate = `
Summarize what customers say in the following reviews in at most {sentences} sentences.
Mention recurring praise and complaints. Do not make up any information. No preamble.

Reviews:
{reviews}
`

// DefaultMaxRetries is used when Config.MaxRetries is zero.
const DefaultMaxRetries = 2

// Config configures the chat client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// Client implements domain.Answerer and domain.Summarizer.
type Client struct {
	client      openai.Client
	model       string
	temperature float64
}

// NewClient reads the API key from cfg.APIKeyEnv.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithRequestTimeout(cfg.Timeout),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
	}, nil
}

// Answer asks the model to answer question from the given reviews.
func (c *Client) Answer(ctx context.Context, question string, reviews []string) (string, error) {
	prompt := strings.NewReplacer(
		"{reviews}", strings.Join(reviews, "\n"),
		"{question}", question,
	).Replace(answerTemplate)
	return c.complete(ctx, prompt)
}

// Summarize asks the model for a short summary of the reviews.
func (c *Client) Summarize(ctx context.Context, reviews []string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	prompt := strings.NewReplacer(
		"{sentences}", strconv.Itoa(maxSentences),
		"{reviews}", "- "+strings.Join(reviews, "\n- "),
	).Replace(summaryTemplate)
	return c.complete(ctx, prompt)
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(c.temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
