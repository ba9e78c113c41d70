package config

import "testing"

func TestDefaultVocabulary(t *testing.T) {
	v := MustDefaultVocabulary()

	if len(v.Classifier) < 3 || v.Classifier[0].Label != "credit-report" {
		t.Fatalf("classifier rules = %+v", v.Classifier)
	}
	if len(v.Keywords) == 0 {
		t.Fatalf("expected keywords")
	}
	if v.Aliases["personalInfoAnalysis"] != "personal_info_issues" {
		t.Fatalf("alias missing: %v", v.Aliases)
	}
	if v.Aliases["inquiryAnalysis"] != "inquiries" {
		t.Fatalf("alias missing: %v", v.Aliases)
	}
}

func TestParseVocabularyLowercases(t *testing.T) {
	v, err := ParseVocabulary([]byte("classifier:\n  - label: x\n    groups:\n      - [\" FOO \"]\nkeywords: [Bar]\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if v.Classifier[0].Groups[0][0] != "foo" || v.Keywords[0] != "bar" {
		t.Fatalf("terms not normalized: %+v", v)
	}
	if v.Aliases == nil {
		t.Fatalf("aliases should be non-nil")
	}
}

func TestLoadVocabularyMissingFile(t *testing.T) {
	if _, err := LoadVocabulary("/nonexistent/vocab.yaml"); err == nil {
		t.Fatalf("expected error")
	}
}
