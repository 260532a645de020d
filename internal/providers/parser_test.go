package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderList(t *testing.T) {
	refs := ParseProviderList(" Gemini | ollama:nomic|ollama:nomic|openai:key2|")
	require.Len(t, refs, 3)
	assert.Equal(t, "gemini", refs[0].Name)
	assert.Equal(t, ProviderRef{Raw: "ollama:nomic", Name: "ollama", KeyAlias: "nomic"}, refs[1])
	assert.Equal(t, "openai:key2", refs[2].String())
}

func TestParseProviderListDefaultsToMock(t *testing.T) {
	refs := ParseProviderList(" | ")
	require.Len(t, refs, 1)
	assert.Equal(t, "mock", refs[0].Name)
}
