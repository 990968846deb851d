package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/llm"
	"github.com/docchat/backend/internal/metrics"
	"github.com/docchat/backend/internal/quota"
	"github.com/docchat/backend/internal/storage/models"
	"github.com/docchat/backend/internal/vector"
	"github.com/docchat/backend/pkg/logger"
)

var (
	ErrGenerationFailed  = errors.New("generation failed")
	ErrPersistenceFailed = errors.New("failed to persist message")
)

// TimeoutApology is returned when generation exceeds the deadline. It is a
// successful answer from the caller's perspective and the turn is persisted.
const TimeoutApology = "I apologize, but the response took too long to generate. Please try asking a shorter, more specific question."

const systemPrompt = "You are a document assistant. Answer the current question using only the provided document context and recent conversation. If the context does not contain the information needed, say so clearly. Keep your response concise and helpful."

type MessageStore interface {
	InsertMessage(msg *models.ChatMessage) error
	GetMessages(userID, documentID string) ([]models.ChatMessage, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type Authorizer interface {
	Authorize(ctx context.Context, userID, documentID string) (quota.Decision, error)
}

type Indexer interface {
	EnsureIndexed(ctx context.Context, documentID string) error
}

// EmbeddingCache is optional; a nil cache means every query is embedded
// fresh. Cache failures degrade to a miss, never to a request failure.
type EmbeddingCache interface {
	Get(ctx context.Context, text string) ([]float32, bool)
	Put(ctx context.Context, text string, embedding []float32)
}

type Config struct {
	TopK              int
	ContextChars      int
	HistoryLoad       int
	HistoryKeep       int
	GenerationTimeout time.Duration
}

// Engine runs the full question pipeline: quota, idempotent indexing,
// retrieval, prompt assembly, and bounded generation. Each call is a
// stateless pass over persisted history.
type Engine struct {
	messages MessageStore
	quota    Authorizer
	indexer  Indexer
	vectors  vector.Store
	embedder Embedder
	llm      Generator
	cache    EmbeddingCache
	cfg      Config
}

type AskResult struct {
	Allowed bool
	Reason  string
	Answer  string
}

func NewEngine(messages MessageStore, authorizer Authorizer, indexer Indexer, vectors vector.Store, embedder Embedder, generator Generator, cache EmbeddingCache, cfg Config) *Engine {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = 3000
	}
	if cfg.HistoryLoad <= 0 {
		cfg.HistoryLoad = 6
	}
	if cfg.HistoryKeep <= 0 {
		cfg.HistoryKeep = 4
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = 45 * time.Second
	}

	return &Engine{
		messages: messages,
		quota:    authorizer,
		indexer:  indexer,
		vectors:  vectors,
		embedder: embedder,
		llm:      generator,
		cache:    cache,
		cfg:      cfg,
	}
}

// Ask answers a question about one document. Quota runs first so the count
// never includes the question being asked; both turns are persisted only
// after an answer exists. On assistant-turn persistence failure the answer
// is still returned alongside ErrPersistenceFailed.
func (e *Engine) Ask(ctx context.Context, userID, documentID, question string) (*AskResult, error) {
	start := time.Now()

	decision, err := e.quota.Authorize(ctx, userID, documentID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		tier := "free"
		if decision.Pro {
			tier = "pro"
		}
		metrics.QuotaDenied.WithLabelValues(tier).Inc()
		return &AskResult{Allowed: false, Reason: decision.Reason}, nil
	}

	if err := e.indexer.EnsureIndexed(ctx, documentID); err != nil {
		metrics.QuestionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	answer, err := e.generate(ctx, userID, documentID, question)
	if err != nil {
		metrics.QuestionsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := &AskResult{Allowed: true, Answer: answer}

	if err := e.persistTurns(userID, documentID, question, answer); err != nil {
		metrics.QuestionsTotal.WithLabelValues("unsaved").Inc()
		// The model call completed; hand the answer back anyway.
		return result, err
	}

	metrics.QuestionsTotal.WithLabelValues("ok").Inc()
	metrics.QuestionDuration.Observe(time.Since(start).Seconds())

	logger.Info("Question answered",
		zap.String("user_id", userID),
		zap.String("document_id", documentID),
		zap.Duration("elapsed", time.Since(start)),
	)

	return result, nil
}

func (e *Engine) generate(ctx context.Context, userID, documentID, question string) (string, error) {
	queryEmbedding, err := e.embedQuery(ctx, question)
	if err != nil {
		return "", err
	}

	matches, err := e.vectors.Search(ctx, documentID, queryEmbedding, e.cfg.TopK)
	if err != nil {
		return "", fmt.Errorf("%w: retrieval: %v", ErrGenerationFailed, err)
	}

	history, err := e.loadHistory(userID, documentID)
	if err != nil {
		return "", err
	}

	prompt := e.buildPrompt(matches, history, question)

	genCtx, cancel := context.WithTimeout(ctx, e.cfg.GenerationTimeout)
	defer cancel()

	answer, err := e.llm.Complete(genCtx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || genCtx.Err() == context.DeadlineExceeded {
			metrics.GenerationTimeouts.Inc()
			logger.Warn("Generation timed out, returning apology",
				zap.String("document_id", documentID),
				zap.Duration("timeout", e.cfg.GenerationTimeout),
			)
			return TimeoutApology, nil
		}
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	if answer == "" {
		return "", fmt.Errorf("%w: model returned an empty response", ErrGenerationFailed)
	}

	return answer, nil
}

func (e *Engine) embedQuery(ctx context.Context, question string) ([]float32, error) {
	if e.cache != nil {
		if vec, ok := e.cache.Get(ctx, question); ok {
			metrics.EmbeddingCacheHits.Inc()
			return vec, nil
		}
		metrics.EmbeddingCacheMisses.Inc()
	}

	vec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Put(ctx, question, vec)
	}

	return vec, nil
}

func (e *Engine) loadHistory(userID, documentID string) ([]models.ChatMessage, error) {
	msgs, err := e.messages.GetMessages(userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// Store order is newest first; compaction wants chronological.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return CompactHistory(msgs, e.cfg.HistoryLoad, e.cfg.HistoryKeep), nil
}

func (e *Engine) buildPrompt(matches []vector.Match, history []models.ChatMessage, question string) string {
	texts := make([]string, len(matches))
	for i, match := range matches {
		texts[i] = match.Text
	}

	contextText := strings.Join(texts, "\n\n")
	if len(contextText) > e.cfg.ContextChars {
		contextText = contextText[:e.cfg.ContextChars]
	}

	var b strings.Builder
	b.WriteString("Context from document:\n")
	b.WriteString(contextText)
	b.WriteString("\n\n")

	if transcript := RenderTranscript(history); transcript != "" {
		b.WriteString("Recent conversation:\n")
		b.WriteString(transcript)
		b.WriteString("\n\n")
	}

	b.WriteString("Current question: ")
	b.WriteString(question)

	return b.String()
}

func (e *Engine) persistTurns(userID, documentID, question, answer string) error {
	userMsg := &models.ChatMessage{
		ID:         uuid.New().String(),
		UserID:     userID,
		DocumentID: documentID,
		Role:       models.RoleUser,
		Content:    question,
		CreatedAt:  time.Now(),
	}
	if err := e.messages.InsertMessage(userMsg); err != nil {
		return fmt.Errorf("%w: user turn: %v", ErrPersistenceFailed, err)
	}

	assistantMsg := &models.ChatMessage{
		ID:         uuid.New().String(),
		UserID:     userID,
		DocumentID: documentID,
		Role:       models.RoleAssistant,
		Content:    answer,
		CreatedAt:  time.Now(),
	}
	if err := e.messages.InsertMessage(assistantMsg); err != nil {
		return fmt.Errorf("%w: assistant turn: %v", ErrPersistenceFailed, err)
	}

	return nil
}

// Messages returns the full transcript for the pair in chronological order.
func (e *Engine) Messages(ctx context.Context, userID, documentID string) ([]models.ChatMessage, error) {
	msgs, err := e.messages.GetMessages(userID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}
