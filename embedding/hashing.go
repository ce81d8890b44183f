package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// defaultDimensions is the vector size of the hashing provider.
const defaultDimensions = 256

// hashingMaxBatch is an arbitrary but generous local batch limit.
const hashingMaxBatch = 512

// HashingProvider is a deterministic, offline embedding provider. It maps
// each whitespace-delimited token into a vector bucket via FNV-1a feature
// hashing and L2-normalizes the result, so identical texts always produce
// identical vectors and overlapping vocabularies score a meaningful cosine
// similarity. It carries no semantic model; swap in an API-backed Provider
// when real semantic quality matters.
type HashingProvider struct {
	dimensions int
}

// NewHashingProvider creates a hashing provider with the default dimensions.
func NewHashingProvider() *HashingProvider {
	return &HashingProvider{dimensions: defaultDimensions}
}

// NewHashingProviderWithDimensions creates a hashing provider with a custom
// vector size. Dimensions below 1 fall back to the default.
func NewHashingProviderWithDimensions(dimensions int) *HashingProvider {
	if dimensions < 1 {
		dimensions = defaultDimensions
	}
	return &HashingProvider{dimensions: dimensions}
}

// Embed generates one vector per input text.
func (p *HashingProvider) Embed(_ context.Context, req Request) (Response, error) {
	embeddings := make([][]float32, 0, len(req.Texts))
	for _, text := range req.Texts {
		embeddings = append(embeddings, p.embedOne(text))
	}
	return Response{Embeddings: embeddings}, nil
}

// Dimensions returns the vector size.
func (p *HashingProvider) Dimensions() int {
	return p.dimensions
}

// MaxBatchSize returns the local batch limit.
func (p *HashingProvider) MaxBatchSize() int {
	return hashingMaxBatch
}

// ID returns the provider identifier.
func (p *HashingProvider) ID() string {
	return "hashing"
}

// embedOne buckets each token into the vector by hash and normalizes.
func (p *HashingProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimensions)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum32()
		bucket := int(sum % uint32(p.dimensions))

		// The next hash bit decides the sign so buckets cancel rather than
		// saturate on large vocabularies.
		if sum&(1<<31) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// compile-time check that HashingProvider implements Provider
var _ Provider = (*HashingProvider)(nil)
