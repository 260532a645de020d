package providers

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"civiccite/internal/util"
)

// MockProvider answers deterministically so the full pipeline runs without
// network access. Generated answers cite the passages they quote.
type MockProvider struct {
	dim int
}

func NewMockProvider(dim int) *MockProvider {
	if dim <= 0 {
		dim = 768
	}
	return &MockProvider{dim: dim}
}

func (m *MockProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	_ = ctx
	dim := req.Dimension
	if dim <= 0 {
		dim = m.dim
	}
	vectors := make([][]float32, 0, len(req.Inputs))
	for _, input := range req.Inputs {
		vectors = append(vectors, deterministicVector(util.Canonicalize(input), dim))
	}
	return vectors, ProviderInfo{Name: "mock", Model: fmt.Sprintf("mock-embed-%d", dim), Key: "mock"}, nil
}

func (m *MockProvider) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, ProviderInfo, error) {
	_ = ctx
	info := ProviderInfo{Name: "mock", Model: "mock-llm-v1", Key: "mock"}
	if !strings.Contains(strings.ToLower(req.Operation), "rag") && !strings.Contains(strings.ToLower(req.Operation), "answer") {
		return GenerateResponse{Text: "Mock response."}, info, nil
	}
	if len(req.Context) == 0 {
		return GenerateResponse{Text: NotEnoughInformation}, info, nil
	}
	var b strings.Builder
	for i, passage := range req.Context {
		if i == 3 {
			break
		}
		line := firstSentence(passage, 200)
		if line == "" {
			continue
		}
		b.WriteString(line)
		b.WriteString(" [")
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("]\n")
	}
	if b.Len() == 0 {
		return GenerateResponse{Text: NotEnoughInformation}, info, nil
	}
	return GenerateResponse{Text: strings.TrimSpace(b.String())}, info, nil
}

func firstSentence(passage string, maxRunes int) string {
	words := strings.Fields(util.Canonicalize(passage))
	for i, w := range words {
		if util.IsSentenceEnd(w) {
			words = words[:i+1]
			break
		}
	}
	passage = strings.Join(words, " ")
	if s, ok := util.TruncateAtSentence(passage, maxRunes); ok {
		return s
	}
	s, _ := util.TruncateAtWord(passage, maxRunes)
	return s
}

func deterministicVector(input string, dim int) []float32 {
	vec := make([]float32, dim)
	seed := []byte(input)
	if len(seed) == 0 {
		seed = []byte("empty")
	}
	for i := 0; i < dim; i++ {
		h := sha256.Sum256(append(seed, byte(i%251), byte(i/251)))
		u := binary.BigEndian.Uint32(h[:4])
		vec[i] = float32(u%2000)/1000.0 - 1.0
	}
	return normalize(vec)
}

// normalize scales v to unit length so cosine similarity equals the dot product.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
	return v
}
