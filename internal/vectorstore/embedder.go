// Package vectorstore implements an in-memory document store with
// deterministic embeddings and blended similarity search.
package vectorstore

import (
	"crypto/md5"
	"strconv"
	"strings"
)

// Embedder turns text into a fixed-dimension vector. Implementations
// must be deterministic: the same text always yields the same vector.
type Embedder interface {
	Embed(text string) []float64
	Model() string
	Dimensions() int
}

// HashEmbedder derives embeddings from chained MD5 digests of the
// lowercased input. It stands in for a real embedding model while
// keeping search results reproducible.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder with the given dimensionality.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 128
	}
	return &HashEmbedder{dim: dim}
}

// Embed returns the deterministic vector for text, each component
// normalized to [0,1].
func (e *HashEmbedder) Embed(text string) []float64 {
	normalized := strings.ToLower(text)

	vec := make([]float64, 0, e.dim)
	for block := 0; len(vec) < e.dim; block++ {
		digest := md5.Sum([]byte(normalized + "#" + strconv.Itoa(block)))
		for _, b := range digest {
			if len(vec) == e.dim {
				break
			}
			vec = append(vec, float64(b)/255.0)
		}
	}
	return vec
}

// Model returns the embedder's model identifier.
func (e *HashEmbedder) Model() string {
	return "mock-embeddings-v1"
}

// Dimensions returns the embedding dimensionality.
func (e *HashEmbedder) Dimensions() int {
	return e.dim
}
