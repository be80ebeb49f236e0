package lifecycle

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// adjectives and nouns back a small built-in name generator for VMs created
// without an explicit --name (SPEC_FULL.md §12: the Rust original pulls in
// a `names` crate; fireup has no pack equivalent, so it ships a short
// built-in list instead).
var adjectives = []string{
	"quiet", "brisk", "amber", "lucid", "stark", "nimble", "solemn", "hollow",
	"vivid", "wry", "bold", "terse", "pale", "keen", "rough", "dry",
}

var nouns = []string{
	"heron", "basalt", "cinder", "willow", "harbor", "thistle", "granite",
	"ember", "ridge", "current", "lantern", "marrow", "quarry", "tundra",
}

// GenerateName produces a random "adjective-noun" VM name. Collisions with
// an existing name are the caller's responsibility to detect and retry.
func GenerateName() (string, error) {
	adj, err := randomElement(adjectives)
	if err != nil {
		return "", err
	}
	noun, err := randomElement(nouns)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s", adj, noun), nil
}

func randomElement(words []string) (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(words))))
	if err != nil {
		return "", fmt.Errorf("generate random name: %w", err)
	}
	return words[n.Int64()], nil
}
