package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorTokenizer_CountTokens(t *testing.T) {
	e := NewEstimatorTokenizer("any", 0)
	assert.Equal(t, 128000, e.MaxTokens())

	tests := []struct {
		name string
		text string
		want int
	}{
		{name: "empty", text: "", want: 0},
		{name: "short ascii rounds up to one", text: "hi", want: 1},
		{name: "ascii", text: strings.Repeat("a", 40), want: 10},
		{name: "cjk", text: "间歇性断食研究", want: 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := e.CountTokens(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestEstimatorTokenizer_CountMessages(t *testing.T) {
	e := NewEstimatorTokenizer("any", 0)
	n, err := e.CountMessages([]Message{
		{Role: "user", Content: strings.Repeat("a", 8)},
		{Role: "assistant", Content: strings.Repeat("b", 4)},
	})
	require.NoError(t, err)
	assert.Equal(t, 3+(2+4)+(1+4), n)
}

func TestGetTokenizer_PrefixAndVendor(t *testing.T) {
	RegisterTokenizer("test-model", NewEstimatorTokenizer("test-model", 10))
	RegisterTokenizer("test-model-large", NewEstimatorTokenizer("test-model-large", 20))

	tok, err := GetTokenizer("vendor/test-model-large-2025")
	require.NoError(t, err)
	assert.Equal(t, 20, tok.MaxTokens())

	tok, err = GetTokenizer("test-model-x")
	require.NoError(t, err)
	assert.Equal(t, 10, tok.MaxTokens())

	_, err = GetTokenizer("unknown-model")
	assert.Error(t, err)
	assert.Equal(t, "estimator", GetTokenizerOrEstimator("unknown-model").Name())
}

func TestNewTiktokenTokenizer_Encodings(t *testing.T) {
	tests := []struct {
		model    string
		wantName string
		wantMax  int
	}{
		{model: "openai/gpt-4.1", wantName: "tiktoken[o200k_base]", wantMax: 1047576},
		{model: "openai/o4-mini", wantName: "tiktoken[o200k_base]", wantMax: 200000},
		{model: "gpt-4o-mini-2024-07-18", wantName: "tiktoken[o200k_base]", wantMax: 128000},
		{model: "mystery", wantName: "tiktoken[cl100k_base]", wantMax: 8192},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			tok := NewTiktokenTokenizer(tt.model)
			assert.Equal(t, tt.wantName, tok.Name())
			assert.Equal(t, tt.wantMax, tok.MaxTokens())
		})
	}
}

type failingTokenizer struct{ *EstimatorTokenizer }

func (failingTokenizer) CountTokens(string) (int, error) { return 0, assert.AnError }

func TestCounter_FallsBack(t *testing.T) {
	c := &Counter{primary: failingTokenizer{NewEstimatorTokenizer("m", 0)}, fallback: NewEstimatorTokenizer("m", 0)}
	assert.Equal(t, 10, c.Count(strings.Repeat("x", 40)))
}
