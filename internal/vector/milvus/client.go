// Package milvus implements vector.Store on a Milvus collection with one
// partition per document, mirroring the per-document namespace model.
package milvus

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/docchat/backend/internal/vector"
	"github.com/docchat/backend/pkg/logger"
)

const maxChunkLength = "8192"

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(ctx context.Context, endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Document chunk embeddings, one partition per document",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "96"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "text",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": maxChunkLength},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index spec: %w", err)
	}

	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) NamespaceExists(ctx context.Context, documentID string) (bool, error) {
	partition := partitionName(documentID)

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return false, fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return false, nil
	}

	// A partition left behind by a crashed ingest may hold no vectors.
	rs, err := m.client.Query(
		ctx,
		m.collectionName,
		[]string{partition},
		"chunk_index >= 0",
		[]string{"chunk_id"},
		client.WithLimit(1),
	)
	if err != nil {
		return false, fmt.Errorf("failed to query partition stats: %w", err)
	}

	for _, col := range rs {
		if col.Len() > 0 {
			return true, nil
		}
	}

	return false, nil
}

func (m *Client) Populate(ctx context.Context, documentID string, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	partition := partitionName(documentID)

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		err = m.client.CreatePartition(ctx, m.collectionName, partition)
		if err != nil {
			return fmt.Errorf("failed to create partition: %w", err)
		}
	}

	chunkIDs := make([]string, len(chunks))
	docIDs := make([]string, len(chunks))
	indexes := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))

	for i, chunk := range chunks {
		chunkIDs[i] = fmt.Sprintf("%s_chunk_%d", documentID, chunk.Index)
		docIDs[i] = documentID
		indexes[i] = int64(chunk.Index)
		texts[i] = chunk.Text
		embeddings[i] = chunk.Embedding
	}

	_, err = m.client.Insert(
		ctx,
		m.collectionName,
		partition,
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnVarChar("document_id", docIDs),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Namespace populated",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunks)),
	)

	return nil
}

func (m *Client) Search(ctx context.Context, documentID string, queryEmbedding []float32, topK int) ([]vector.Match, error) {
	partition := partitionName(documentID)

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return nil, fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil, nil
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{partition},
		"",
		[]string{"chunk_index", "text"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	matches := make([]vector.Match, 0, topK)
	for _, sr := range searchResult {
		indexCol := sr.Fields.GetColumn("chunk_index")
		textCol := sr.Fields.GetColumn("text")

		for i := 0; i < sr.ResultCount; i++ {
			idx, _ := indexCol.Get(i)
			text, _ := textCol.Get(i)

			matches = append(matches, vector.Match{
				ChunkIndex: int(idx.(int64)),
				Text:       text.(string),
				Score:      sr.Scores[i],
			})
		}
	}

	// Milvus orders by score; re-sort to pin the chunk-order tie-break.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	logger.Debug("Vector search completed",
		zap.String("document_id", documentID),
		zap.Int("topK", topK),
		zap.Int("results", len(matches)),
	)

	return matches, nil
}

func (m *Client) DeleteNamespace(ctx context.Context, documentID string) error {
	partition := partitionName(documentID)

	has, err := m.client.HasPartition(ctx, m.collectionName, partition)
	if err != nil {
		return fmt.Errorf("failed to check partition: %w", err)
	}
	if !has {
		return nil
	}

	err = m.client.ReleasePartitions(ctx, m.collectionName, []string{partition})
	if err != nil {
		return fmt.Errorf("failed to release partition: %w", err)
	}

	err = m.client.DropPartition(ctx, m.collectionName, partition)
	if err != nil {
		return fmt.Errorf("failed to drop partition: %w", err)
	}

	logger.Info("Namespace deleted", zap.String("document_id", documentID))

	return nil
}

// partitionName maps a document ID to a Milvus-safe partition name.
func partitionName(documentID string) string {
	return "doc_" + strings.NewReplacer("-", "_", ".", "_").Replace(documentID)
}
