package providers

import "strings"

// ProviderRef names one configured provider: "openai", or "openai:prod"
// where the part after the colon selects a key or model alias.
type ProviderRef struct {
	Raw      string
	Name     string
	KeyAlias string
}

func (r ProviderRef) String() string {
	if r.KeyAlias == "" {
		return r.Name
	}
	return r.Name + ":" + r.KeyAlias
}

// ParseProviderList reads a pipe-separated provider list in preference
// order. Names are lower-cased, repeated entries are dropped, and an empty
// list means the mock provider.
func ParseProviderList(raw string) []ProviderRef {
	seen := map[string]bool{}
	var out []ProviderRef
	for _, p := range strings.Split(raw, "|") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		name, alias, _ := strings.Cut(p, ":")
		ref := ProviderRef{Raw: p, Name: strings.ToLower(strings.TrimSpace(name)), KeyAlias: strings.TrimSpace(alias)}
		if ref.Name == "" || seen[ref.String()] {
			continue
		}
		seen[ref.String()] = true
		out = append(out, ref)
	}
	if len(out) == 0 {
		out = append(out, ProviderRef{Raw: "mock", Name: "mock"})
	}
	return out
}
