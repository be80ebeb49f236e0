package lifecycle

import (
	"strings"
	"testing"
)

func TestGenerateNameShape(t *testing.T) {
	for i := 0; i < 50; i++ {
		name, err := GenerateName()
		if err != nil {
			t.Fatalf("GenerateName: %v", err)
		}
		parts := strings.Split(name, "-")
		if len(parts) != 2 {
			t.Fatalf("got %q, want exactly one hyphen", name)
		}
		if parts[0] == "" || parts[1] == "" {
			t.Fatalf("got %q, want non-empty adjective and noun", name)
		}
	}
}

func TestGenerateNameDrawsFromWordLists(t *testing.T) {
	name, err := GenerateName()
	if err != nil {
		t.Fatalf("GenerateName: %v", err)
	}
	parts := strings.SplitN(name, "-", 2)
	if !contains(adjectives, parts[0]) {
		t.Errorf("adjective %q not in adjectives list", parts[0])
	}
	if !contains(nouns, parts[1]) {
		t.Errorf("noun %q not in nouns list", parts[1])
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
