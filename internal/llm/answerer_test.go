package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTemplateAnswerer_Deterministic(t *testing.T) {
	answerer := TemplateAnswerer{}

	a := answerer.Answer("What is Docker?", nil, 0.7)
	b := answerer.Answer("What is Docker?", nil, 0.2)
	assert.Equal(t, a, b)
	assert.Contains(t, a, "what is docker can be explained")
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{name: "no context means zero", scores: nil, want: 0},
		{name: "mean with boost", scores: []float64{0.5, 0.5}, want: 0.6},
		{name: "capped at one", scores: []float64{0.95, 0.95}, want: 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Confidence(tt.scores), 1e-9)
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 4, EstimateTokens("what   is  machine learning"))
}

func TestRandomFailureInjector(t *testing.T) {
	never := NewRandomFailureInjector(0, 1)
	for i := 0; i < 100; i++ {
		assert.False(t, never.ShouldFail())
	}

	always := NewRandomFailureInjector(1, 1)
	for i := 0; i < 100; i++ {
		assert.True(t, always.ShouldFail())
	}

	half := NewRandomFailureInjector(0.5, 42)
	failures := 0
	for i := 0; i < 1000; i++ {
		if half.ShouldFail() {
			failures++
		}
	}
	assert.InDelta(t, 500, failures, 100)
}
