package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QuestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_questions_total",
			Help: "Total questions processed",
		},
		[]string{"status"},
	)

	QuestionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docchat_question_duration_seconds",
			Help:    "End-to-end question handling duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 60},
		},
	)

	QuotaDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docchat_quota_denied_total",
			Help: "Questions denied by quota",
		},
		[]string{"tier"},
	)

	GenerationTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_generation_timeouts_total",
			Help: "Generations that hit the deadline and fell back to the apology",
		},
	)

	DocumentsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_documents_indexed_total",
			Help: "Documents ingested into the vector store",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docchat_ingest_duration_seconds",
			Help:    "Full document ingestion duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	EmbeddingCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_embedding_cache_hits_total",
			Help: "Query embeddings served from cache",
		},
	)

	EmbeddingCacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "docchat_embedding_cache_misses_total",
			Help: "Query embeddings computed on a cache miss",
		},
	)
)

func Init() {
	prometheus.MustRegister(QuestionsTotal)
	prometheus.MustRegister(QuestionDuration)
	prometheus.MustRegister(QuotaDenied)
	prometheus.MustRegister(GenerationTimeouts)
	prometheus.MustRegister(DocumentsIndexed)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(EmbeddingCacheHits)
	prometheus.MustRegister(EmbeddingCacheMisses)
}

func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
