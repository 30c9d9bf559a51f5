package groupbot

import "testing"

func TestIsEmojiMask(t *testing.T) {
	tests := []struct {
		cluster string
		ok      bool
	}{
		{"🦊", true},
		{"🎭", true},
		{"☀️", true},
		{"⭐", true},
		{"✂️", true},
		{"🇩🇪", true},
		{"a", false},
		{"ß", false},
		{"7", false},
		{"中", false},
		{"@", false},
	}
	for _, tt := range tests {
		if got := isEmojiMask(tt.cluster); got != tt.ok {
			t.Errorf("isEmojiMask(%q) = %v, want %v", tt.cluster, got, tt.ok)
		}
	}
}
