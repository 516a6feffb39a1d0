package rewrite

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel   = "gpt-3.5-turbo"
	DefaultTimeout = 30 * time.Second
)

var prompts = map[Tone]struct{ system, user string }{
	ToneUplift: {
		system: "You are a helpful assistant that rewrites text to be more positive and happy.",
		user:   "Rewrite the following text to make it more positive, happy, and uplifting while maintaining the core meaning. Make it cheerful and optimistic:\n\n",
	},
	ToneSomber: {
		system: "You are a helpful assistant that rewrites text to be more negative and sad.",
		user:   "Rewrite the following text to make it more melancholic, sad, and somber while maintaining the core meaning. Make it more negative and pessimistic:\n\n",
	},
}

// OpenAI rewrites through the chat completions API.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	timeout time.Duration

	mu     sync.Mutex
	client *openai.Client
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	p := &OpenAI{
		apiKey:  strings.TrimSpace(cfg.APIKey),
		model:   strings.TrimSpace(cfg.Model),
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
	}
	if p.model == "" {
		p.model = DefaultModel
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	return p
}

func (p *OpenAI) Configured() bool {
	return p.apiKey != ""
}

func (p *OpenAI) ensureClient() (*openai.Client, error) {
	if p.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client == nil {
		opts := []option.RequestOption{option.WithAPIKey(p.apiKey), option.WithMaxRetries(1)}
		if p.baseURL != "" {
			opts = append(opts, option.WithBaseURL(p.baseURL))
		}
		c := openai.NewClient(opts...)
		p.client = &c
	}
	return p.client, nil
}

// Rewrite returns the model's completion, or the input text when the model
// answers with nothing.
func (p *OpenAI) Rewrite(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	client, err := p.ensureClient()
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	prompt := prompts[req.Tone]
	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(prompt.system),
			openai.UserMessage(prompt.user + req.Text),
		},
		Temperature: openai.Float(0.7),
		MaxTokens:   openai.Int(500),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &Error{Kind: KindService, Err: err}
		}
		return "", timeoutOr(KindNetwork, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return req.Text, nil
	}
	return resp.Choices[0].Message.Content, nil
}
