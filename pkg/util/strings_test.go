package util

import "testing"

func TestParseIntDefault(t *testing.T) {
	if got := ParseIntDefault("", 50); got != 50 {
		t.Fatalf("expected default, got %d", got)
	}
	if got := ParseIntDefault("abc", 50); got != 50 {
		t.Fatalf("expected default for junk, got %d", got)
	}
	if got := ParseIntDefault(" 12 ", 50); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func TestClampInt(t *testing.T) {
	cases := []struct{ v, want int }{{0, 1}, {1, 1}, {250, 250}, {501, 500}}
	for _, c := range cases {
		if got := ClampInt(c.v, 1, 500); got != c.want {
			t.Fatalf("ClampInt(%d) = %d, want %d", c.v, got, c.want)
		}
	}
}

func TestLastNonEmptyLine(t *testing.T) {
	if got := LastNonEmptyLine("first\n  second  \n\n \n"); got != "second" {
		t.Fatalf("unexpected %q", got)
	}
	if got := LastNonEmptyLine("\n\n"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("ação", 10); got != "ação" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("ação", 2); got != "aç" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestSplitList(t *testing.T) {
	got := SplitList(" BTCUSDT, ,ethusdt ,")
	if len(got) != 2 || got[0] != "BTCUSDT" || got[1] != "ethusdt" {
		t.Fatalf("unexpected %v", got)
	}
}
