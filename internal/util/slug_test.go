package util

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"simple title", "Hello World", "hello-world"},
		{"punctuation collapsed", "Intro: Economics & Policy!", "intro-economics-policy"},
		{"leading and trailing junk", "  --Hello--  ", "hello"},
		{"uppercase", "POLICY Brief 2026", "policy-brief-2026"},
		{"empty", "", "untitled"},
		{"only symbols", "???!!!", "untitled"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slugify(tc.input); got != tc.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestNewIDPrefix(t *testing.T) {
	id := NewID("cnt")
	if len(id) != len("cnt_")+32 {
		t.Fatalf("unexpected id length: %s", id)
	}
	if id[:4] != "cnt_" {
		t.Fatalf("expected cnt_ prefix, got %s", id)
	}
	if NewID("cnt") == id {
		t.Fatal("expected distinct ids")
	}
}
