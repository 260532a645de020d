package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"civiccite/internal/util"

	"github.com/fumiama/go-docx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestExtractHTMLSkipsChrome(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "page.html", `<html><head><title> Voter  Services </title><style>p{}</style></head>
<body><header>Menu</header><nav>Home | About</nav>
<p>Apply online with Form 6.</p><script>var x = 1;</script>
<ul><li>Carry an ID proof.</li></ul><footer>Copyright</footer></body></html>`)

	out, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, MethodHTML, out.Method)
	assert.Equal(t, "Voter Services", out.Title)
	assert.Contains(t, out.Text, "Apply online with Form 6.")
	assert.Contains(t, out.Text, "Carry an ID proof.")
	for _, junk := range []string{"Menu", "Home", "var x", "Copyright", "p{}"} {
		assert.NotContains(t, out.Text, junk)
	}
}

func TestExtractMarkdown(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "guide.md", "# Ration Cards\n\nVisit the *taluk* office.\n\n- Bring [Aadhaar](https://uidai.gov.in)\n- Bring a photo\n")

	out, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, MethodMarkdown, out.Method)
	assert.Equal(t, "Ration Cards", out.Title)
	assert.Contains(t, out.Text, "Visit the taluk office.")
	assert.Contains(t, out.Text, "Bring Aadhaar")
	assert.NotContains(t, out.Text, "uidai.gov.in")
}

func TestExtractTextFallsBackToFilenameTitle(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pension-rules.txt", "Pensions are paid monthly.\x00")

	out, err := New().Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, MethodText, out.Method)
	assert.Equal(t, "pension-rules", out.Title)
	assert.Equal(t, "Pensions are paid monthly.", out.Text)
}

func TestExtractDOCX(t *testing.T) {
	dir := t.TempDir()
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("Scholarship eligibility")
	w.AddParagraph().AddText("Family income must be below the limit.")
	f, err := os.Create(filepath.Join(dir, "scholar.docx"))
	require.NoError(t, err)
	_, err = w.WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := New().Extract(context.Background(), filepath.Join(dir, "scholar.docx"))
	require.NoError(t, err)
	assert.Equal(t, MethodDOCX, out.Method)
	assert.Contains(t, out.Text, "Family income must be below the limit.")
}

func TestExtractUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sheet.xlsx", "x")
	_, err := New().Extract(context.Background(), path)
	require.True(t, errors.Is(err, util.ErrUnsupportedFormat), "got %v", err)
}

func TestDiscoverAppliesManifestAndDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", strings.Repeat("word ", 40))
	writeFile(t, dir, "sub/b.md", "# B\n\ntext")
	writeFile(t, dir, "ignored.bin", "x")
	writeFile(t, dir, ManifestName, `{"path":"a.txt","url":"https://eci.gov.in/a","language":"hi","last_updated":"2025-06-01"}
# comment

`)

	entries, err := Discover(dir, Defaults{Language: "en", Region: "kerala"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.txt", entries[0].Path)
	assert.Equal(t, "hi", entries[0].Language)
	assert.Equal(t, "kerala", entries[0].Region)
	assert.Equal(t, "sub/b.md", entries[1].Path)
	assert.Equal(t, "en", entries[1].Language)

	doc, err := New().Document(context.Background(), dir, entries[0])
	require.NoError(t, err)
	assert.Equal(t, "txt", doc.SourceType)
	require.NotNil(t, doc.LastUpdated)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), *doc.LastUpdated)
	assert.Len(t, doc.SourceID, 64)
}

func TestLoadManifestRejectsBadLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ManifestName, `{"path":"a.txt","last_updated":"yesterday"}`)
	_, err := LoadManifest(dir)
	require.Error(t, err)

	writeFile(t, dir, ManifestName, `{"url":"x"}`)
	_, err = LoadManifest(dir)
	require.Error(t, err)
}
