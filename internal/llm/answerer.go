// Package llm implements the answer service: context retrieval from the
// vector store, mock answer generation, and confidence scoring.
package llm

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// DefaultModel is the model identifier reported in responses and spans.
const DefaultModel = "gpt-3.5-turbo"

// Answerer generates an answer from a question and retrieved context.
type Answerer interface {
	Answer(question string, context []string, temperature float64) string
	Model() string
}

// TemplateAnswerer produces deterministic template answers. It stands in
// for a real completion API.
type TemplateAnswerer struct{}

// Answer renders the template answer for the question.
func (TemplateAnswerer) Answer(question string, context []string, temperature float64) string {
	normalized := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(question), "?"))
	return fmt.Sprintf("Based on the provided context, %s can be explained as follows: "+
		"This is a comprehensive answer that draws from the relevant documents "+
		"and provides accurate information.", normalized)
}

// Model returns the model identifier.
func (TemplateAnswerer) Model() string {
	return DefaultModel
}

// FailureInjector decides whether a generation attempt should fail
// synthetically, to exercise error traces end to end.
type FailureInjector interface {
	ShouldFail() bool
}

// NeverFail disables failure injection.
type NeverFail struct{}

// ShouldFail always reports false.
func (NeverFail) ShouldFail() bool { return false }

// RandomFailureInjector fails a configurable fraction of attempts.
type RandomFailureInjector struct {
	probability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomFailureInjector creates an injector failing with the given
// probability in [0,1].
func NewRandomFailureInjector(probability float64, seed int64) *RandomFailureInjector {
	return &RandomFailureInjector{
		probability: probability,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// ShouldFail reports whether this attempt fails.
func (r *RandomFailureInjector) ShouldFail() bool {
	if r.probability <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rng.Float64() < r.probability
}

// EstimateTokens approximates token usage by whitespace-separated words.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// Confidence folds retrieval scores into a confidence value: the mean
// score with a modest boost, capped at 1.0. No context means zero
// confidence.
func Confidence(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	confidence := (sum / float64(len(scores))) * 1.2
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}
