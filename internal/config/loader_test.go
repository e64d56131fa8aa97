package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeTemp(t, "cfg.yaml", "addr: \":9000\"\nrun_root: /tmp/runs\ncache_capacity: 500\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.RunRoot != "/tmp/runs" || cfg.CacheCapacity != 500 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadJSON(t *testing.T) {
	p := writeTemp(t, "cfg.json", `{"addr":":9100","finish_grace_seconds":5.5}`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9100" || cfg.FinishGraceSeconds != 5.5 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeTemp(t, "cfg.toml", "addr = \":9200\"\nlog_level = \"debug\"\n")
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr != ":9200" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeTemp(t, "cfg.ini", "addr=:1\n")
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	p := writeTemp(t, "bad.yaml", "addr: [unclosed\n")
	if _, err := Load(p); err == nil {
		t.Fatal("expected parse error")
	}
}
