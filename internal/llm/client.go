package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docchat/backend/pkg/logger"
)

// ErrEmbeddingUnavailable marks embedding-service failures. Ingestion and
// retrieval cannot proceed without embeddings, so callers propagate it.
var ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
}

func NewClient(baseURL, apiKey, model, embeddingModel string, temperature float32, maxTokens int) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
	}
}

// Complete runs a chat completion. Cancellation and deadlines are owned by
// the caller; the answer engine applies the generation timeout.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
			},
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		},
	)
	if err != nil {
		return "", fmt.Errorf("failed to create completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	logger.Debug("Completion generated",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return resp.Choices[0].Message.Content, nil
}

// Embed maps text to a vector. The same model serves chunk and query
// embedding so both live in one similarity space.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		resp, err := c.client.CreateEmbeddings(
			ctx,
			openai.EmbeddingRequest{
				Input: texts[i:end],
				Model: openai.EmbeddingModel(c.embeddingModel),
			},
		)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
		}

		if len(resp.Data) != end-i {
			return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrEmbeddingUnavailable, len(resp.Data), end-i)
		}

		for _, data := range resp.Data {
			vec := make([]float32, len(data.Embedding))
			copy(vec, data.Embedding)
			embeddings = append(embeddings, vec)
		}
	}

	logger.Debug("Embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}
