// Package policy holds the versioned lookup tables consulted at ingest and
// query time: the domain to trust tier table and the unsafe-intent markers.
// A Policy is immutable once loaded; updates replace it wholesale.
package policy

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"civiccite/internal/models"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

type fileFormat struct {
	Version       string       `yaml:"version"`
	DefaultTier   string       `yaml:"default_tier"`
	Languages     []string     `yaml:"languages"`
	Trust         []trustEntry `yaml:"trust"`
	UnsafeIntents []intentSpec `yaml:"unsafe_intents"`
}

type trustEntry struct {
	Domain string `yaml:"domain"`
	Tier   string `yaml:"tier"`
}

type intentSpec struct {
	Category    string   `yaml:"category"`
	GuidanceKey string   `yaml:"guidance_key"`
	Message     string   `yaml:"message"`
	Keywords    []string `yaml:"keywords"`
	Patterns    []string `yaml:"patterns"`
}

type Intent struct {
	Category    string
	GuidanceKey string
	Message     string
	matchers    []*regexp.Regexp
}

// Match is the result of a positive unsafe-intent check.
type Match struct {
	Category    string
	GuidanceKey string
	Message     string
}

type Policy struct {
	version     string
	defaultTier models.TrustTier
	tiers       map[string]models.TrustTier
	languages   map[string]struct{}
	intents     []Intent
}

// Default returns the policy compiled from the embedded YAML.
func Default() (*Policy, error) {
	return Parse(defaultPolicyYAML)
}

// LoadFile parses the policy at path, or the embedded default when path is empty.
func LoadFile(path string) (*Policy, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}
	return Parse(b)
}

func Parse(b []byte) (*Policy, error) {
	var f fileFormat
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode policy yaml: %w", err)
	}
	if strings.TrimSpace(f.Version) == "" {
		return nil, fmt.Errorf("policy version is required")
	}
	p := &Policy{
		version:     f.Version,
		defaultTier: models.TierWeb,
		tiers:       make(map[string]models.TrustTier, len(f.Trust)),
		languages:   make(map[string]struct{}, len(f.Languages)),
	}
	if f.DefaultTier != "" {
		t, err := models.ParseTrustTier(f.DefaultTier)
		if err != nil {
			return nil, fmt.Errorf("policy default_tier: %w", err)
		}
		p.defaultTier = t
	}
	for _, e := range f.Trust {
		domain := normalizeHost(e.Domain)
		if domain == "" {
			return nil, fmt.Errorf("policy trust entry with empty domain")
		}
		t, err := models.ParseTrustTier(e.Tier)
		if err != nil {
			return nil, fmt.Errorf("policy trust entry %s: %w", e.Domain, err)
		}
		if prev, dup := p.tiers[domain]; dup && prev != t {
			return nil, fmt.Errorf("policy trust entry %s listed with conflicting tiers", domain)
		}
		p.tiers[domain] = t
	}
	for _, l := range f.Languages {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			p.languages[l] = struct{}{}
		}
	}
	for _, raw := range f.UnsafeIntents {
		in, err := compileIntent(raw)
		if err != nil {
			return nil, err
		}
		p.intents = append(p.intents, in)
	}
	return p, nil
}

func compileIntent(raw intentSpec) (Intent, error) {
	if strings.TrimSpace(raw.Category) == "" || strings.TrimSpace(raw.GuidanceKey) == "" {
		return Intent{}, fmt.Errorf("unsafe intent requires category and guidance_key")
	}
	in := Intent{Category: raw.Category, GuidanceKey: raw.GuidanceKey, Message: raw.Message}
	for _, kw := range raw.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		parts := strings.Fields(strings.ToLower(kw))
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		in.matchers = append(in.matchers, regexp.MustCompile(`(?i)(^|[^\pL\pN])`+strings.Join(parts, `\s+`)+`($|[^\pL\pN])`))
	}
	for _, pat := range raw.Patterns {
		re, err := regexp.Compile("(?i)" + pat)
		if err != nil {
			return Intent{}, fmt.Errorf("unsafe intent %s pattern %q: %w", raw.Category, pat, err)
		}
		in.matchers = append(in.matchers, re)
	}
	if len(in.matchers) == 0 {
		return Intent{}, fmt.Errorf("unsafe intent %s has no keywords or patterns", raw.Category)
	}
	return in, nil
}

func (p *Policy) Version() string { return p.version }

func (p *Policy) DefaultTier() models.TrustTier { return p.defaultTier }

// Tier maps a host name, URL or bare source id to its trust tier. Exact
// matches win, then the longest listed parent domain. Anything unlisted gets
// the default tier, so every input has exactly one tier.
func (p *Policy) Tier(hostOrURL string) models.TrustTier {
	host := normalizeHost(hostOrURL)
	for host != "" {
		if t, ok := p.tiers[host]; ok {
			return t
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
	}
	return p.defaultTier
}

// Domains lists the configured domains in sorted order.
func (p *Policy) Domains() []string {
	out := make([]string, 0, len(p.tiers))
	for d := range p.tiers {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// SupportsLanguage reports whether a base language tag is served. A policy
// without a language list serves every language.
func (p *Policy) SupportsLanguage(lang string) bool {
	if len(p.languages) == 0 {
		return true
	}
	_, ok := p.languages[strings.ToLower(lang)]
	return ok
}

// WithLanguages returns a copy whose language list is replaced.
func (p *Policy) WithLanguages(langs []string) *Policy {
	cp := *p
	cp.languages = make(map[string]struct{}, len(langs))
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			cp.languages[l] = struct{}{}
		}
	}
	return &cp
}

// MatchUnsafe returns the first unsafe-intent category, in file order, that
// matches the query.
func (p *Policy) MatchUnsafe(query string) (Match, bool) {
	q := norm.NFKC.String(query)
	for _, in := range p.intents {
		for _, re := range in.matchers {
			if re.MatchString(q) {
				return Match{Category: in.Category, GuidanceKey: in.GuidanceKey, Message: in.Message}, true
			}
		}
	}
	return Match{}, false
}

func normalizeHost(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Hostname()
		}
	} else if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if h, _, ok := strings.Cut(s, ":"); ok {
		s = h
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "www."), ".")
	return s
}

// Host extracts the normalized host used for trust lookup and SMS captions.
func Host(rawURL string) string {
	return normalizeHost(rawURL)
}
