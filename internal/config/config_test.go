package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tinyimg/internal/lossless"
	"tinyimg/internal/lossy"
	"tinyimg/internal/processor"
	"tinyimg/internal/quantize"
)

func TestLoad_FullConfig(t *testing.T) {
	yaml := `level: 5
lossy: auto
alpha: true
strip: safe
interlace: keep
fast: true
timeout: 30s
preserve: false
verbose: false
recursive: true
dither: diffusion
seed: 42
output: ./optimized
`
	cfg, err := Load(writeTemp(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	opts := processor.DefaultOptions()
	if err := cfg.Apply(&opts); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	want := processor.Options{
		Level:     5,
		Lossy:     lossy.AutoBudget,
		Alpha:     true,
		Strip:     lossless.StripSafe,
		Interlace: lossless.InterlaceKeep,
		Fast:      true,
		Timeout:   30 * time.Second,
		Preserve:  false,
		Verbose:   false,
		Recursive: true,
		Dither:    quantize.DitherDiffusion,
		Seed:      42,
	}
	if opts != want {
		t.Errorf("options = %+v\nwant      %+v", opts, want)
	}
	if cfg.Output != "./optimized" {
		t.Errorf("output = %q", cfg.Output)
	}
}

func TestApply_KeepsUnsetValues(t *testing.T) {
	cfg, err := Load(writeTemp(t, "lossy: 2.5\n"))
	if err != nil {
		t.Fatal(err)
	}
	opts := processor.DefaultOptions()
	if err := cfg.Apply(&opts); err != nil {
		t.Fatal(err)
	}
	want := processor.DefaultOptions()
	want.Lossy = lossy.Budget{DeltaE: 2.5}
	if opts != want {
		t.Errorf("options = %+v, want %+v", opts, want)
	}
}

func TestApply_InvalidValues(t *testing.T) {
	for _, yaml := range []string{"lossy: lots\n", "strip: most\n", "interlace: sideways\n", "dither: random\n"} {
		cfg, err := Load(writeTemp(t, yaml))
		if err != nil {
			t.Fatalf("Load(%q): %v", yaml, err)
		}
		opts := processor.DefaultOptions()
		if err := cfg.Apply(&opts); err == nil {
			t.Errorf("Apply(%q) should fail", yaml)
		}
	}
}

func TestLoad_EmptyConfig(t *testing.T) {
	for _, content := range []string{"", "   \n  \n", "# only a comment\n"} {
		cfg, err := Load(writeTemp(t, content))
		if err != nil {
			t.Fatalf("Load(%q) failed: %v", content, err)
		}
		if cfg.Level != nil || cfg.Lossy != "" {
			t.Errorf("expected empty config, got %+v", cfg)
		}
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/tinyimg.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTemp(t, "{{invalid yaml")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(writeTemp(t, "level: 3\nbogus_key: 1\n"))
	if err == nil {
		t.Fatal("expected error for unknown key, got nil")
	}
	if !strings.Contains(err.Error(), "bogus_key") {
		t.Errorf("error should mention the unknown key, got: %v", err)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TINYIMG_TEST_LOSSY", "3")

	cfg, err := Load(writeTemp(t, "lossy: ${TINYIMG_TEST_LOSSY}\nstrip: ${TINYIMG_TEST_UNSET:-none}\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Lossy != "3" || cfg.Strip != "none" {
		t.Errorf("expanded config = %+v", cfg)
	}
}

func TestDuration_InvalidFormat(t *testing.T) {
	if _, err := Load(writeTemp(t, "timeout: soon\n")); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("TINYIMG_A", "x")
	tests := map[string]string{
		"${TINYIMG_A}":             "x",
		"${TINYIMG_MISSING}":       "",
		"${TINYIMG_MISSING:-dflt}": "dflt",
		"plain $TINYIMG_A":         "plain $TINYIMG_A",
	}
	for in, want := range tests {
		if got := ExpandEnv(in); got != want {
			t.Errorf("ExpandEnv(%q) = %q, want %q", in, got, want)
		}
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tinyimg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}
