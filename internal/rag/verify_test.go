package rag

import (
	"errors"
	"testing"

	"civiccite/internal/models"
	"civiccite/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threePassages() models.RetrievalResult {
	return numbered(
		scored("c1", "a", models.TierGov, 0.9),
		scored("c2", "b", models.TierGov, 0.8),
		scored("c3", "c", models.TierNGO, 0.7),
	)
}

func TestVerifyDropsUncitedAndRenumbers(t *testing.T) {
	text := "- Bring your ration card [3].\n" +
		"\n" +
		"This line has no citation.\n" +
		"* Forms are free [C2, 3] and online [9].\n" +
		"Nothing resolves here [7].\n"
	g, err := VerifyCitations(text, threePassages())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"Bring your ration card [1].",
		"Forms are free [2, 1] and online.",
	}, g.Lines)
	require.Len(t, g.Citations, 2)
	assert.Equal(t, models.Citation{Index: 1, ChunkID: "c3", SourceURL: "https://c.gov.in/page"}, g.Citations[0])
	assert.Equal(t, 2, g.Citations[1].Index)
	assert.Equal(t, "c2", g.Citations[1].ChunkID)
}

func TestVerifyDropsMarkerOnlyLines(t *testing.T) {
	text := "[1]\n- [2].\nPolling opens at 7 am [3]."
	g, err := VerifyCitations(text, threePassages())
	require.NoError(t, err)
	assert.Equal(t, []string{"Polling opens at 7 am [1]."}, g.Lines)
	require.Len(t, g.Citations, 1)
	assert.Equal(t, "c3", g.Citations[0].ChunkID)

	_, err = VerifyCitations("[1] [2]", threePassages())
	assert.True(t, errors.Is(err, util.ErrUngroundedAnswer))
}

func TestVerifyMalformedMarkerMakesLineUncited(t *testing.T) {
	res := threePassages()
	for _, line := range []string{"Bad [1,] marker.", "Bad [1 2].", "Open [2", "Mixed [1;2]."} {
		_, err := VerifyCitations(line, res)
		assert.True(t, errors.Is(err, util.ErrUngroundedAnswer), "%q: %v", line, err)
	}
	g, err := VerifyCitations("See [annex] first [1].", res)
	require.NoError(t, err)
	assert.Equal(t, []string{"See [annex] first [1]."}, g.Lines)
}

func TestVerifyEveryLineGrounded(t *testing.T) {
	res := threePassages()
	g, err := VerifyCitations("A [1].\nB [2][3].\nC [1, 2, 3].", res)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, id := range res.ChunkIDs() {
		ids[id] = true
	}
	for _, c := range g.Citations {
		assert.True(t, ids[c.ChunkID], "citation %d points outside the retrieval result", c.Index)
	}
	for _, l := range g.Lines {
		markers, ok := parseMarkers(l)
		require.True(t, ok)
		require.NotEmpty(t, markers, "line %q lost its citation", l)
	}
}

func TestVerifyModelDeclined(t *testing.T) {
	_, err := VerifyCitations("  NOT_ENOUGH_INFORMATION\n", threePassages())
	assert.ErrorIs(t, err, ErrModelDeclined)
}

func TestStripMarkers(t *testing.T) {
	assert.Equal(t, "Polls open at 7 am.", StripMarkers("Polls open at 7 am [1, 2]."))
}
