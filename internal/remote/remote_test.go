package remote

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseS3URI(t *testing.T) {
	bucket, key, err := parseS3URI("s3://my-bucket/path/to/include.mk")
	if err != nil {
		t.Fatal(err)
	}
	if bucket != "my-bucket" || key != "path/to/include.mk" {
		t.Errorf("parseS3URI() = (%q, %q), want (%q, %q)", bucket, key, "my-bucket", "path/to/include.mk")
	}
}

func TestParseS3URIRejectsOtherSchemes(t *testing.T) {
	if _, _, err := parseS3URI("https://example.com/foo"); err == nil {
		t.Error("expected an error for a non-s3 scheme")
	}
	if _, _, err := parseS3URI("s3://"); err == nil {
		t.Error("expected an error for a missing bucket")
	}
}

func TestLoadProfileSelectsByName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gomkrc.json")
	doc := `{
		"profiles": [
			{"name": "default", "shell": "/bin/sh", "shellflags": "-c", "env": {"CC": "gcc"}},
			{"name": "ci", "shell": "/bin/bash", "shellflags": "-eu -c", "env": {"CC": "clang"}}
		]
	}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	profile, ok, err := LoadProfile(path, "ci")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected profile 'ci' to be found")
	}
	if profile.Shell != "/bin/bash" || profile.Env["CC"] != "clang" {
		t.Errorf("profile = %+v", profile)
	}
}

func TestLoadProfileMissingFileIsNonFatal(t *testing.T) {
	_, ok, err := LoadProfile(filepath.Join(t.TempDir(), "does-not-exist.json"), "default")
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if ok {
		t.Error("ok should be false for a missing file")
	}
}

func TestLoadProfileUnknownNameIsNonFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gomkrc.json")
	if err := os.WriteFile(path, []byte(`{"profiles": [{"name": "default", "shell": "/bin/sh"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, ok, err := LoadProfile(path, "nonexistent")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("ok should be false when no profile matches")
	}
}
