package globs

import "testing"

func TestMatch_SingleStar(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.ts", "foo.ts", true},
		{"*.ts", "src/foo.ts", false}, // * must not cross separators
		{"src/*.ts", "src/foo.ts", true},
		{"src/*.ts", "src/a/foo.ts", false},
		{"src/*", "src/utils", true},
		{"src/*", "src", false},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.path); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestMatch_DoubleStar(t *testing.T) {
	cases := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"src/**", "src/foo.ts", true},
		{"src/**", "src/a/b/c.ts", true},
		{"src/**", "src", true}, // zero depth
		{"src/**", "docs/foo.ts", false},
		{"**/*.ts", "foo.ts", true}, // zero segments
		{"**/*.ts", "a/b/foo.ts", true},
		{"**/*.ts", "a/b/foo.go", false},
		{"a/**/b", "a/b", true},
		{"a/**/b", "a/x/y/b", true},
		{"a/**/b", "a/x", false},
		{"**", "anything/at/all", true},
	}
	for _, c := range cases {
		if got := Match(c.pattern, c.path); got != c.want {
			t.Errorf("Match(%q, %q) = %v, want %v", c.pattern, c.path, got, c.want)
		}
	}
}

func TestMatch_QuestionMark(t *testing.T) {
	if !Match("file?.go", "file1.go") {
		t.Error("? should match a single character")
	}
	if Match("file?.go", "file12.go") {
		t.Error("? should match exactly one character")
	}
	if Match("a?b", "a/b") {
		t.Error("? should not match the separator")
	}
}

func TestMatch_Anchored(t *testing.T) {
	if Match("foo", "foo.ts") {
		t.Error("patterns must match the full path, not a prefix")
	}
	if Match("oo.ts", "foo.ts") {
		t.Error("patterns must match the full path, not a suffix")
	}
}

func TestCompile_Empty(t *testing.T) {
	if _, err := Compile(""); err == nil {
		t.Error("empty pattern should not compile")
	}
}

func TestMaterialize(t *testing.T) {
	for _, pattern := range []string{"src/**", "**/*.ts", "src/utils/**/*.ts", "file?.go", "docs/*.md"} {
		path := Materialize(pattern)
		if !Match(pattern, path) {
			t.Errorf("Materialize(%q) = %q does not match its own pattern", pattern, path)
		}
	}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		p, q string
		want bool
	}{
		{"src/**", "src/**", true},                  // exact duplicate
		{"src/**", "src/utils/**/*.ts", true},       // nested scope
		{"src/**/*.ts", "src/utils/foo.ts", true},   // literal inside glob
		{"src/*", "src/utils/**", true},             // zero-depth intersection
		{"src/**", "docs/**", false},                // disjoint trees
		{"*.md", "*.ts", false},                     // disjoint extensions
		{"docs/*.md", "docs/readme.md", true},       // literal inside single star
		{"a/b/c.go", "a/b/c.go", true},              // two literals, equal
		{"a/b/c.go", "a/b/d.go", false},             // two literals, different
	}
	for _, c := range cases {
		if got := Overlaps(c.p, c.q); got != c.want {
			t.Errorf("Overlaps(%q, %q) = %v, want %v", c.p, c.q, got, c.want)
		}
		if got := Overlaps(c.q, c.p); got != c.want {
			t.Errorf("Overlaps(%q, %q) = %v, want %v (symmetry)", c.q, c.p, got, c.want)
		}
	}
}
