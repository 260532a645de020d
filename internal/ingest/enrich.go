package ingest

import (
	"fmt"
	"strings"
	"time"

	"civiccite/internal/models"
	"civiccite/internal/policy"
	"civiccite/internal/util"
)

// ChunkID derives the stable identifier of a chunk from its source, its
// position and its content.
func ChunkID(sourceID string, ordinal int, content string) string {
	contentHash := util.SHA256Hex([]byte(content))
	return util.SHA256Hex([]byte(fmt.Sprintf("%s:%d:%s", sourceID, ordinal, contentHash)))
}

// SourceID identifies a document by its canonical URL when one is known and
// by its raw bytes otherwise.
func SourceID(rawURL string, raw []byte) string {
	if u := canonicalURL(rawURL); u != "" {
		return util.SHA256Hex([]byte(u))
	}
	return util.SHA256Hex(raw)
}

func canonicalURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return ""
	}
	host := policy.Host(rawURL)
	if host == "" {
		return ""
	}
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[i:]
	} else {
		rest = ""
	}
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest = rest[:i]
	}
	return host + strings.TrimRight(rest, "/")
}

// Enrich attaches document provenance to a draft. It is a pure function of
// its inputs: the caller supplies ingestTime so replays are byte-identical.
func Enrich(d Draft, doc models.Document, ingestTime time.Time) models.Chunk {
	lastUpdated, ingestTime := provenanceTimes(doc.LastUpdated, ingestTime)
	return models.Chunk{
		ChunkID:          ChunkID(doc.SourceID, d.Ordinal, d.Content),
		Ordinal:          d.Ordinal,
		Content:          d.Content,
		SourceID:         doc.SourceID,
		Title:            strings.TrimSpace(doc.Title),
		URL:              strings.TrimSpace(doc.URL),
		SourceType:       strings.TrimSpace(doc.SourceType),
		Language:         strings.ToLower(strings.TrimSpace(doc.Language)),
		Region:           strings.ToLower(strings.TrimSpace(doc.Region)),
		Topic:            strings.ToLower(strings.TrimSpace(doc.Topic)),
		TrustTier:        models.TierWeb,
		LastUpdated:      lastUpdated,
		IngestTime:       ingestTime,
		ExtractionMethod: doc.ExtractionMethod,
	}
}

// provenanceTimes stores times at database precision. A document without its
// own last_updated takes the ingest time.
func provenanceTimes(docUpdated *time.Time, ingestTime time.Time) (lastUpdated, ingest time.Time) {
	ingest = ingestTime.UTC().Truncate(time.Microsecond)
	lastUpdated = ingest
	if docUpdated != nil && !docUpdated.IsZero() {
		lastUpdated = docUpdated.UTC().Truncate(time.Microsecond)
	}
	return lastUpdated, ingest
}

// Anchor gives chunks that are already indexed their first ingest time, so
// re-ingesting an unchanged document rewrites the same metadata. firstIngest
// maps chunk ids to the stored ingest_time; other chunks are left as they are.
func Anchor(chunks []models.Chunk, docUpdated *time.Time, firstIngest map[string]time.Time) []models.Chunk {
	if len(firstIngest) == 0 {
		return chunks
	}
	out := make([]models.Chunk, len(chunks))
	for i, c := range chunks {
		if first, ok := firstIngest[c.ChunkID]; ok {
			c.LastUpdated, c.IngestTime = provenanceTimes(docUpdated, first)
		}
		out[i] = c
	}
	return out
}

// Classify assigns the trust tier from the chunk's URL host, falling back to
// the source id when there is no URL.
func Classify(c models.Chunk, p *policy.Policy) models.Chunk {
	key := c.URL
	if strings.TrimSpace(key) == "" {
		key = c.SourceID
	}
	c.TrustTier = p.Tier(key)
	return c
}

// Prepare runs the chunker, enricher and classifier over one document.
func Prepare(ch *Chunker, p *policy.Policy, doc models.Document, ingestTime time.Time) ([]models.Chunk, error) {
	drafts, err := ch.Chunk(doc.RawText)
	if err != nil {
		return nil, err
	}
	out := make([]models.Chunk, 0, len(drafts))
	for _, d := range drafts {
		out = append(out, Classify(Enrich(d, doc, ingestTime), p))
	}
	return out, nil
}
