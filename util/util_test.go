package util

import (
	"reflect"
	"testing"
)

func TestPreTokenize(t *testing.T) {
	tests := []struct {
		text     string
		expected []string
	}{
		{"hate hat", []string{"hate", "hat"}},
		{"  don't  stop.", []string{"don", "'", "t", "stop", "."}},
		{"南京市，长江", []string{"南京市", "，", "长江"}},
		{"", nil},
	}
	for _, tt := range tests {
		got := PreTokenize(tt.text)
		if !reflect.DeepEqual(got, tt.expected) {
			t.Errorf("PreTokenize(%q) = %q, want %q", tt.text, got, tt.expected)
		}
	}
}

func TestIsPunctuation(t *testing.T) {
	if !IsPunctuation("，。") {
		t.Errorf("expected CJK punctuation to be detected")
	}
	if IsPunctuation("a.") {
		t.Errorf("mixed string is not pure punctuation")
	}
	if !ContainsPunctuation("a.") {
		t.Errorf("expected punctuation inside %q", "a.")
	}
}
