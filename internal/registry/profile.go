// Package registry loads language profiles: the script ranges, keyword
// lists, and spam patterns the signal computer and filter engine score
// against. Profiles ship with built-in defaults and can be overridden
// from a YAML file.
package registry

import (
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Profile describes how to recognize content in one target language/region.
type Profile struct {
	Language        string   `yaml:"language"`         // BCP-47 tag, e.g. "ja"
	Region          string   `yaml:"region"`           // region code, e.g. "JP"
	Scripts         []string `yaml:"scripts"`          // Unicode script names, e.g. "Hiragana"
	RegionKeywords  []string `yaml:"region_keywords"`  // content strongly tied to the region
	ExcludeKeywords []string `yaml:"exclude_keywords"` // tourist/foreign-content markers
	SpamPatterns    []string `yaml:"spam_patterns"`    // regexes marking low-quality descriptions
	KeywordCap      int      `yaml:"keyword_cap"`      // matches at which keyword_score saturates
	RegularUserMax  int64    `yaml:"regular_user_max"` // follower ceiling for the regular-user bonus

	scriptTables []*unicode.RangeTable
	spamRes      []*regexp.Regexp
}

// InScript reports whether r belongs to any of the profile's scripts.
func (p *Profile) InScript(r rune) bool {
	for _, tbl := range p.scriptTables {
		if unicode.Is(tbl, r) {
			return true
		}
	}
	return false
}

// IsSpam reports whether text matches any spam pattern.
func (p *Profile) IsSpam(text string) bool {
	for _, re := range p.spamRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Registry indexes profiles by language tag.
type Registry struct {
	profiles map[string]*Profile
}

// Profile returns the profile for a language tag, matching the primary
// subtag only ("ja-JP" finds "ja").
func (r *Registry) Profile(lang string) (*Profile, bool) {
	if p, ok := r.profiles[lang]; ok {
		return p, true
	}
	if base, _, found := strings.Cut(lang, "-"); found {
		if p, ok := r.profiles[base]; ok {
			return p, true
		}
	}
	return nil, false
}

// Languages returns the registered language tags.
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.profiles))
	for l := range r.profiles {
		langs = append(langs, l)
	}
	return langs
}

// compile resolves script names and spam regexes, rejecting unknown names.
func (p *Profile) compile() error {
	if p.Language == "" {
		return eris.New("registry: profile missing language tag")
	}
	if p.KeywordCap <= 0 {
		p.KeywordCap = defaultKeywordCap
	}
	if p.RegularUserMax <= 0 {
		p.RegularUserMax = defaultRegularUserMax
	}

	p.scriptTables = p.scriptTables[:0]
	for _, name := range p.Scripts {
		tbl, ok := unicode.Scripts[name]
		if !ok {
			return eris.Errorf("registry: unknown Unicode script %q in profile %s", name, p.Language)
		}
		p.scriptTables = append(p.scriptTables, tbl)
	}

	p.spamRes = p.spamRes[:0]
	for _, pat := range p.SpamPatterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return eris.Wrapf(err, "registry: compile spam pattern %q in profile %s", pat, p.Language)
		}
		p.spamRes = append(p.spamRes, re)
	}

	return nil
}

// New builds a registry from the given profiles.
func New(profiles []*Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		if err := p.compile(); err != nil {
			return nil, err
		}
		r.profiles[p.Language] = p
	}
	return r, nil
}

// LoadFromFile reads a YAML list of profiles. An empty path returns the
// built-in defaults.
func LoadFromFile(path string) (*Registry, error) {
	if path == "" {
		return Default()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "registry: read profile file")
	}

	var doc struct {
		Profiles []*Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "registry: unmarshal profile file")
	}
	if len(doc.Profiles) == 0 {
		return nil, eris.Errorf("registry: no profiles in %s", path)
	}

	return New(doc.Profiles)
}
