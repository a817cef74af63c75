package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/TrevorS/kfn"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kfn.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileConfig(t *testing.T) {
	path := writeConfig(t, `
k: 7
algorithm: single_tree
tree_type: ball
leaf_size: 15
epsilon: 0.05
metric: minkowski
minkowski_p: 3
log:
  level: debug
  format: json
`)
	fc, err := loadFileConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if fc.K != 7 || fc.Algorithm != "single_tree" || fc.TreeType != "ball" {
		t.Errorf("unexpected config: %+v", fc)
	}
	if fc.LeafSize != 15 || fc.Epsilon != 0.05 {
		t.Errorf("unexpected config: %+v", fc)
	}
	if fc.Metric != "minkowski" || fc.MinkowskiP != 3 {
		t.Errorf("unexpected metric config: %+v", fc)
	}
	if fc.Log.Level != "debug" || fc.Log.Format != "json" {
		t.Errorf("unexpected log config: %+v", fc.Log)
	}
}

func TestLoadFileConfig_Missing(t *testing.T) {
	if _, err := loadFileConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestLoadFileConfig_Empty(t *testing.T) {
	fc, err := loadFileConfig("")
	if err != nil {
		t.Fatal(err)
	}
	if fc.K != 0 {
		t.Errorf("empty path should yield zero config, got %+v", fc)
	}
}

func TestResolveSearchConfig_FlagsWinOverFile(t *testing.T) {
	path := writeConfig(t, "k: 7\nalgorithm: single_tree\nleaf_size: 15\n")

	cmd := newSearchCmd()
	cmd.Flags().String("config", path, "")
	if err := cmd.Flags().Set("k", "3"); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := resolveSearchConfig(cmd)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.K != 3 {
		t.Errorf("flag should override file: k = %d, want 3", cfg.K)
	}
	if cfg.Algorithm != kfn.AlgorithmSingleTree {
		t.Errorf("file value should apply when flag unset: algorithm = %q", cfg.Algorithm)
	}
	if cfg.LeafSize != 15 {
		t.Errorf("file value should apply when flag unset: leaf_size = %d", cfg.LeafSize)
	}
}

func TestResolveSearchConfig_MetricFromFlags(t *testing.T) {
	cmd := newSearchCmd()
	cmd.Flags().String("config", "", "")
	if err := cmd.Flags().Set("metric", "minkowski"); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Flags().Set("minkowski-p", "3"); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := resolveSearchConfig(cmd)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := cfg.Metric.(kfn.MinkowskiMetric)
	if !ok {
		t.Fatalf("metric is %T, want MinkowskiMetric", cfg.Metric)
	}
	if m.P != 3 {
		t.Errorf("minkowski p = %v, want 3", m.P)
	}
}
