package store

import (
	"encoding/binary"
	"fmt"
	"math"

	"memoryd/internal/logging"
)

// VectorMatch is one ANN hit against the chunk embedding index.
type VectorMatch struct {
	ChunkID    string
	Similarity float64
}

// EnsureVectorIndex creates the vec0 table for chunk embeddings. No-op when
// the extension is unavailable or the table exists.
func (s *LocalStore) EnsureVectorIndex(dims int) error {
	if !s.vectorExt {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
			chunk_id TEXT,
			tenant TEXT,
			embedding float[%d]
		)`, dims))
	if err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	logging.Store("Vector index ready (dims=%d)", dims)
	return nil
}

// UpsertChunkEmbedding stores the embedding for a chunk. Silently a no-op
// when sqlite-vec is not compiled in; retrieval then runs lexical-only.
func (s *LocalStore) UpsertChunkEmbedding(tenant, chunkID string, embedding []float32) error {
	if !s.vectorExt {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return withRetry("UpsertChunkEmbedding", func() error {
		if _, err := s.db.Exec("DELETE FROM vec_chunks WHERE chunk_id = ?", chunkID); err != nil {
			return err
		}
		_, err := s.db.Exec(
			"INSERT INTO vec_chunks (chunk_id, tenant, embedding) VALUES (?, ?, ?)",
			chunkID, tenant, encodeFloat32SliceToBlob(embedding))
		return err
	})
}

// SearchVector performs ANN search over chunk embeddings for the tenant.
func (s *LocalStore) SearchVector(tenant string, queryEmbedding []float32, topK int) ([]VectorMatch, error) {
	if !s.vectorExt {
		return nil, nil
	}
	timer := logging.StartTimer(logging.CategoryStore, "SearchVector")
	defer timer.Stop()

	if topK <= 0 {
		topK = 20
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT chunk_id, vec_distance_cosine(embedding, ?) AS distance
		FROM vec_chunks
		WHERE tenant = ?
		ORDER BY distance ASC
		LIMIT ?`, encodeFloat32SliceToBlob(queryEmbedding), tenant, topK)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	defer rows.Close()

	var matches []VectorMatch
	for rows.Next() {
		var m VectorMatch
		var distance float64
		if err := rows.Scan(&m.ChunkID, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		// Cosine distance is 1 - similarity.
		m.Similarity = 1.0 - distance
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// encodeFloat32SliceToBlob encodes a float32 slice as the little-endian
// binary blob sqlite-vec expects.
func encodeFloat32SliceToBlob(values []float32) []byte {
	blob := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}
