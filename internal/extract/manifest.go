package extract

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"civiccite/internal/ingest"
	"civiccite/internal/models"
)

const ManifestName = "manifest.jsonl"

// Entry describes one input file. Path is relative to the input directory.
type Entry struct {
	Path        string `json:"path"`
	URL         string `json:"url,omitempty"`
	Title       string `json:"title,omitempty"`
	Language    string `json:"language,omitempty"`
	Region      string `json:"region,omitempty"`
	Topic       string `json:"topic,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
	LastUpdated string `json:"last_updated,omitempty"`
	FetchedAt   string `json:"fetched_at,omitempty"`
}

// Defaults fill fields a manifest entry leaves empty.
type Defaults struct {
	Language string
	Region   string
	Topic    string
}

// LoadManifest reads dir/manifest.jsonl. A missing manifest is not an error.
func LoadManifest(dir string) (map[string]Entry, error) {
	out := map[string]Entry{}
	f, err := os.Open(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		e.Path = filepath.ToSlash(filepath.Clean(strings.TrimSpace(e.Path)))
		if e.Path == "" || e.Path == "." {
			return nil, fmt.Errorf("manifest line %d: path is required", line)
		}
		if _, err := parseDate(e.LastUpdated); err != nil {
			return nil, fmt.Errorf("manifest line %d: last_updated: %w", line, err)
		}
		if _, err := parseDate(e.FetchedAt); err != nil {
			return nil, fmt.Errorf("manifest line %d: fetched_at: %w", line, err)
		}
		out[e.Path] = e
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return out, nil
}

// Discover lists every supported file under dir, sorted by path, paired with
// its manifest entry. Files without an entry get one built from defaults.
func Discover(dir string, defaults Defaults) ([]Entry, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	var out []Entry
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() == ManifestName || !Supported(path) {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		e, ok := manifest[rel]
		if !ok {
			e = Entry{Path: rel}
		}
		out = append(out, e.withDefaults(defaults))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan input dir: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (e Entry) withDefaults(d Defaults) Entry {
	if strings.TrimSpace(e.Language) == "" {
		e.Language = d.Language
	}
	if strings.TrimSpace(e.Region) == "" {
		e.Region = d.Region
	}
	if strings.TrimSpace(e.Topic) == "" {
		e.Topic = d.Topic
	}
	return e
}

// Document extracts the file named by e under dir and assembles the
// Document handed to the chunker.
func (x *Extractor) Document(ctx context.Context, dir string, e Entry) (models.Document, error) {
	path := filepath.Join(dir, filepath.FromSlash(e.Path))
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("read %s: %w", e.Path, err)
	}
	ex, err := x.Extract(ctx, path)
	if err != nil {
		return models.Document{}, err
	}
	lastUpdated, _ := parseDate(e.LastUpdated)
	fetchedAt, _ := parseDate(e.FetchedAt)

	title := ex.Title
	if strings.TrimSpace(e.Title) != "" {
		title = e.Title
	}
	sourceType := e.SourceType
	if strings.TrimSpace(sourceType) == "" {
		sourceType = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	doc := models.Document{
		SourceID:         ingest.SourceID(e.URL, raw),
		URL:              e.URL,
		RawText:          ex.Text,
		Title:            title,
		Language:         e.Language,
		Region:           e.Region,
		Topic:            e.Topic,
		SourceType:       sourceType,
		ExtractionMethod: ex.Method,
		LastUpdated:      lastUpdated,
	}
	if fetchedAt != nil {
		doc.FetchedAt = *fetchedAt
	}
	return doc, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", s)
}
