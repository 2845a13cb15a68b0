package jira

import (
	"regexp"
	"sort"
	"strings"
)

var tokenSeparators = regexp.MustCompile(`[\s,;]+`)

// keyPattern matches KEY-<digits> case-insensitively. The digits must not be
// followed by a word character or hyphen, so "PROJ-12a" does not match.
// "PROJX-1" does not match PROJ because the hyphen must follow the key.
func keyPattern(projectKey string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(projectKey) + `-(\d+)(?:[^\w-]|$)`)
}

// Matches reports whether text mentions an issue of projectKey.
func Matches(text, projectKey string) bool {
	if projectKey == "" {
		return false
	}
	return keyPattern(projectKey).MatchString(text)
}

type projectPattern struct {
	key string
	re  *regexp.Regexp
}

// KeyExtractor finds issue keys for the registered projects in free text.
type KeyExtractor struct {
	projects []projectPattern
}

// NewKeyExtractor compiles a matcher per project key. It fails with
// ErrNotInitialized if the registry has not been loaded.
func NewKeyExtractor(reg *Registry) (*KeyExtractor, error) {
	keys, err := reg.ProjectKeys()
	if err != nil {
		return nil, err
	}
	x := &KeyExtractor{projects: make([]projectPattern, 0, len(keys))}
	for _, k := range keys {
		x.projects = append(x.projects, projectPattern{key: k, re: keyPattern(k)})
	}
	// Longest key first, so "XCPG-1" is claimed by XCPG rather than CPG.
	sort.SliceStable(x.projects, func(i, j int) bool {
		return len(x.projects[i].key) > len(x.projects[j].key)
	})
	return x, nil
}

// ContainsAnyIssueKey reports whether text mentions an issue of any
// registered project.
func (x *KeyExtractor) ContainsAnyIssueKey(text string) bool {
	for _, p := range x.projects {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// ExtractAll returns the distinct issue keys in text in order of first
// appearance. Keys are normalized to the registered project key's casing.
func (x *KeyExtractor) ExtractAll(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, token := range tokenSeparators.Split(text, -1) {
		if token == "" {
			continue
		}
		for _, p := range x.projects {
			m := p.re.FindStringSubmatch(token)
			if m == nil {
				continue
			}
			key := p.key + "-" + m[1]
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				out = append(out, key)
			}
			break
		}
	}
	return out
}

// ExtractFromTexts runs ExtractAll over each text and merges the results,
// keeping first-appearance order across texts.
func (x *KeyExtractor) ExtractFromTexts(texts ...string) []string {
	return x.ExtractAll(strings.Join(texts, "\n"))
}
