package vectorstore

import (
	"sort"
	"strings"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"
)

// Blend weights for the final relevance score.
const (
	cosineWeight  = 0.7
	overlapWeight = 0.3
)

// MaxSearchLimit caps the result count of a single search regardless of
// what the caller requests.
const MaxSearchLimit = 20

// Document is one entry in the corpus.
type Document struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`

	embedding []float64
}

// Result is one search hit.
type Result struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Score    float64        `json:"score"`
	Metadata map[string]any `json:"metadata"`
}

// Stats is the store statistics snapshot.
type Stats struct {
	TotalDocuments int     `json:"total_documents"`
	Dimensions     int     `json:"dimensions"`
	IndexSizeMB    float64 `json:"index_size_mb"`
	SearchRequests uint64  `json:"search_requests"`
}

// Store holds the corpus and ranks documents against queries. The
// corpus is immutable after construction, so reads need no locking.
type Store struct {
	embedder Embedder
	docs     []Document

	searches atomic.Uint64
}

// NewStore creates a store over the given documents, computing each
// document's embedding once up front.
func NewStore(embedder Embedder, docs []Document) *Store {
	for i := range docs {
		docs[i].embedding = embedder.Embed(docs[i].Content)
	}
	return &Store{embedder: embedder, docs: docs}
}

// NewSeededStore creates a store preloaded with the demo corpus.
func NewSeededStore(embedder Embedder) *Store {
	return NewStore(embedder, seedDocuments())
}

// Embedder returns the store's embedder.
func (s *Store) Embedder() Embedder {
	return s.embedder
}

// Search embeds the query and ranks the corpus against it.
func (s *Store) Search(query string, limit int, threshold float64) []Result {
	return s.SearchEmbedded(s.embedder.Embed(query), query, limit, threshold)
}

// SearchEmbedded ranks the corpus against a query whose embedding the
// caller already computed. The relevance score blends embedding cosine
// similarity with word overlap; documents below threshold are excluded
// and at most limit results return (clamped to MaxSearchLimit), ordered
// by descending score with ascending document ID breaking ties.
func (s *Store) SearchEmbedded(queryVec []float64, query string, limit int, threshold float64) []Result {
	s.searches.Add(1)

	if limit <= 0 {
		limit = 5
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	queryWords := wordSet(query)

	results := make([]Result, 0, len(s.docs))
	for _, doc := range s.docs {
		score := cosineWeight*cosineSimilarity(queryVec, doc.embedding) +
			overlapWeight*overlap(queryWords, doc.Content)
		if score < threshold {
			continue
		}
		results = append(results, Result{
			ID:       doc.ID,
			Content:  doc.Content,
			Score:    score,
			Metadata: doc.Metadata,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// CandidateCount returns the size of the corpus.
func (s *Store) CandidateCount() int {
	return len(s.docs)
}

// Stats returns a statistics snapshot.
func (s *Store) Stats() Stats {
	// Rough index footprint: one float64 per dimension per document.
	sizeMB := float64(len(s.docs)*s.embedder.Dimensions()*8) / (1 << 20)
	return Stats{
		TotalDocuments: len(s.docs),
		Dimensions:     s.embedder.Dimensions(),
		IndexSizeMB:    sizeMB,
		SearchRequests: s.searches.Load(),
	}
}

// cosineSimilarity returns the cosine of the angle between two vectors,
// or zero when either is degenerate.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

// overlap returns the fraction of query words present in the content.
func overlap(queryWords map[string]struct{}, content string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	contentWords := wordSet(content)
	matched := 0
	for w := range queryWords {
		if _, ok := contentWords[w]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(queryWords))
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// seedDocuments returns the demo corpus.
func seedDocuments() []Document {
	return []Document{
		{
			ID:      "doc_1",
			Content: "Artificial Intelligence (AI) is a branch of computer science that aims to create intelligent machines. It includes machine learning, deep learning, and neural networks.",
			Metadata: map[string]any{
				"source": "ai_handbook.pdf", "page": 1, "category": "technology",
			},
		},
		{
			ID:      "doc_2",
			Content: "Machine learning is a subset of AI that enables computers to learn and improve from experience without being explicitly programmed. It uses algorithms to find patterns in data.",
			Metadata: map[string]any{
				"source": "ml_guide.pdf", "page": 5, "category": "technology",
			},
		},
		{
			ID:      "doc_3",
			Content: "Python is a high-level programming language known for its simplicity and readability. It's widely used in data science, web development, and automation.",
			Metadata: map[string]any{
				"source": "python_tutorial.pdf", "page": 2, "category": "programming",
			},
		},
		{
			ID:      "doc_4",
			Content: "Docker is a containerization platform that allows developers to package applications and their dependencies into lightweight, portable containers.",
			Metadata: map[string]any{
				"source": "docker_docs.pdf", "page": 1, "category": "devops",
			},
		},
		{
			ID:      "doc_5",
			Content: "Kubernetes is an open-source container orchestration platform for automating deployment, scaling, and management of containerized applications.",
			Metadata: map[string]any{
				"source": "k8s_manual.pdf", "page": 3, "category": "devops",
			},
		},
	}
}
