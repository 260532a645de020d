package providers

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMockEmbedDeterministicUnitVectors(t *testing.T) {
	m := NewMockProvider(64)
	a, _, err := m.Embed(context.Background(), EmbedRequest{Inputs: []string{"voter id", "voter   id"}})
	require.NoError(t, err)
	require.Len(t, a, 2)
	require.Equal(t, a[0], a[1], "canonically equal inputs embed identically")

	var sum float64
	for _, x := range a[0] {
		sum += float64(x) * float64(x)
	}
	require.InDelta(t, 1.0, math.Sqrt(sum), 1e-4)
}

func TestMockGenerateCitesPassages(t *testing.T) {
	m := NewMockProvider(8)
	resp, info, err := m.Generate(context.Background(), GenerateRequest{
		Operation: OperationAnswer,
		Prompt:    "How do I register?",
		Context: []string{
			"Register online through the voter portal. Bring proof of age.",
			"Form 6 is used for new electors.",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "mock", info.Name)
	lines := strings.Split(resp.Text, "\n")
	require.Equal(t, []string{
		"Register online through the voter portal. [1]",
		"Form 6 is used for new electors. [2]",
	}, lines)
}

func TestMockGenerateWithoutPassages(t *testing.T) {
	resp, _, err := NewMockProvider(8).Generate(context.Background(), GenerateRequest{Operation: OperationAnswer})
	require.NoError(t, err)
	require.Equal(t, NotEnoughInformation, resp.Text)
}

func TestRenderPromptNumbersPassages(t *testing.T) {
	got := renderPrompt(GenerateRequest{Prompt: "QUESTION: q", Context: []string{"a", " b "}})
	require.Equal(t, "QUESTION: q\n\nPASSAGES:\n[1] a\n\n[2] b", got)
}
