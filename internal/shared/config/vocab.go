package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed vocab.yaml
var defaultVocab []byte

// LabelRule is one classifier heuristic entry.
type LabelRule struct {
	Label  string     `yaml:"label"`
	Groups [][]string `yaml:"groups"`
}

// Vocabulary holds the fixed term lists used by the classifier, the knowledge
// keyword extractor and the analysis key-alias table.
type Vocabulary struct {
	Classifier []LabelRule       `yaml:"classifier"`
	Keywords   []string          `yaml:"keywords"`
	Aliases    map[string]string `yaml:"aliases"`
}

// LoadVocabulary parses path, or the embedded default when path is empty.
func LoadVocabulary(path string) (Vocabulary, error) {
	raw := defaultVocab
	if p := strings.TrimSpace(path); p != "" {
		b, err := os.ReadFile(p)
		if err != nil {
			return Vocabulary{}, fmt.Errorf("read vocabulary: %w", err)
		}
		raw = b
	}
	return ParseVocabulary(raw)
}

// ParseVocabulary decodes YAML and lower-cases every term.
func ParseVocabulary(raw []byte) (Vocabulary, error) {
	var v Vocabulary
	if err := yaml.Unmarshal(raw, &v); err != nil {
		return Vocabulary{}, fmt.Errorf("parse vocabulary: %w", err)
	}
	for i := range v.Classifier {
		v.Classifier[i].Label = strings.TrimSpace(v.Classifier[i].Label)
		for g := range v.Classifier[i].Groups {
			v.Classifier[i].Groups[g] = lowerTerms(v.Classifier[i].Groups[g])
		}
	}
	v.Keywords = lowerTerms(v.Keywords)
	if v.Aliases == nil {
		v.Aliases = map[string]string{}
	}
	return v, nil
}

// MustDefaultVocabulary returns the embedded vocabulary. It panics only if the
// embedded file is malformed.
func MustDefaultVocabulary() Vocabulary {
	v, err := ParseVocabulary(defaultVocab)
	if err != nil {
		panic(err)
	}
	return v
}

func lowerTerms(in []string) []string {
	out := make([]string, 0, len(in))
	for _, t := range in {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}
