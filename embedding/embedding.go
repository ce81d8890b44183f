// Package embedding defines the text-embedding capability the cache layer
// depends on: given text, produce a fixed-length numeric vector.
//
// Implementations may call remote embedding APIs or compute vectors locally.
// The cache layer only relies on the contract, never on internals.
package embedding

import (
	"context"
	"math"
)

// Request represents a request for text embeddings.
type Request struct {
	// Texts to embed (batched for efficiency)
	Texts []string
}

// Response contains the embedding vectors from a provider.
type Response struct {
	// Embeddings contains one vector per input text, in the same order
	Embeddings [][]float32
}

// Provider generates text embeddings for semantic similarity operations.
//
// Embeddings are dense vector representations of text. Similar texts will
// have embeddings with high cosine similarity scores.
type Provider interface {
	// Embed generates embeddings for the given texts.
	// The response contains one embedding vector per input text, in the same order.
	Embed(ctx context.Context, req Request) (Response, error)

	// Dimensions returns the dimensionality of embedding vectors.
	Dimensions() int

	// MaxBatchSize returns the maximum number of texts per single request.
	MaxBatchSize() int

	// ID returns the provider identifier (e.g., "hashing", "openai-embedding").
	ID() string
}

// CosineSimilarity computes cosine similarity between two float32 vectors.
// Mismatched or empty vectors score zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
