package storage

import "testing"

func TestSlugify(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"classic-tee", "classic-tee"},
		{"Classic Tee", "classic-tee"},
		{"Éclair Nº 7", "eclair-no-7"},
		{"  spaced  out  ", "spaced-out"},
		{"slash/../traversal", "slash-traversal"},
		{"___", ""},
	}
	for _, tc := range cases {
		if got := Slugify(tc.in); got != tc.want {
			t.Fatalf("Slugify(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCompositeFileName(t *testing.T) {
	name, err := CompositeFileName("classic-tee", "71", "23")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "classic-tee__71__num-23.png"; name != want {
		t.Fatalf("CompositeFileName = %q, want %q", name, want)
	}

	// Deterministic: the same inputs always produce the same name.
	again, err := CompositeFileName("classic-tee", "71", "23")
	if err != nil || again != name {
		t.Fatalf("expected deterministic filename, got %q / %v", again, err)
	}

	if _, err := CompositeFileName("", "71", "23"); err == nil {
		t.Fatalf("expected error for empty handle")
	}
	if _, err := CompositeFileName("classic-tee", "71", "!!"); err == nil {
		t.Fatalf("expected error when number slugifies to nothing")
	}
}

func TestCompositeObjectPath(t *testing.T) {
	path, err := CompositeObjectPath("https://cdn.example/art/classic-tee.png", "classic-tee__71__num-23.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "art/classic-tee__71__num-23.png"; path != want {
		t.Fatalf("CompositeObjectPath = %q, want %q", path, want)
	}

	rootPath, err := CompositeObjectPath("https://cdn.example/base.png", "x.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rootPath != "x.png" {
		t.Fatalf("expected bare filename at bucket root, got %q", rootPath)
	}
}
