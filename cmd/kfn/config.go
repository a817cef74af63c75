package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/TrevorS/kfn"
)

// fileConfig holds defaults loadable from a YAML file. Flags that were
// explicitly set on the command line win over file values.
type fileConfig struct {
	K          int     `yaml:"k"`
	Algorithm  string  `yaml:"algorithm"`
	TreeType   string  `yaml:"tree_type"`
	LeafSize   int     `yaml:"leaf_size"`
	Epsilon    float64 `yaml:"epsilon"`
	Metric     string  `yaml:"metric"`
	MinkowskiP float64 `yaml:"minkowski_p"`
	Log        struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fc, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return fc, nil
}

// searchPaths collects the file arguments of one search run.
type searchPaths struct {
	reference   string
	query       string
	inputModel  string
	outputModel string
	neighbors   string
	distances   string
}

// resolveSearchConfig merges command-line flags over config-file defaults
// into a kfn.SearchConfig plus the input/output paths.
func resolveSearchConfig(cmd *cobra.Command) (kfn.SearchConfig, searchPaths, error) {
	var cfg kfn.SearchConfig
	var paths searchPaths

	configPath, _ := cmd.Flags().GetString("config")
	fc, err := loadFileConfig(configPath)
	if err != nil {
		return cfg, paths, err
	}

	cfg.K = fc.K
	cfg.Algorithm = kfn.Algorithm(fc.Algorithm)
	cfg.TreeType = kfn.TreeType(fc.TreeType)
	cfg.LeafSize = fc.LeafSize
	cfg.Epsilon = fc.Epsilon
	metricName, minkowskiP := fc.Metric, fc.MinkowskiP

	flags := cmd.Flags()
	if flags.Changed("k") {
		cfg.K, _ = flags.GetInt("k")
	}
	if flags.Changed("algorithm") {
		v, _ := flags.GetString("algorithm")
		cfg.Algorithm = kfn.Algorithm(v)
	}
	if flags.Changed("tree-type") {
		v, _ := flags.GetString("tree-type")
		cfg.TreeType = kfn.TreeType(v)
	}
	if flags.Changed("leaf-size") {
		cfg.LeafSize, _ = flags.GetInt("leaf-size")
	}
	if flags.Changed("epsilon") {
		cfg.Epsilon, _ = flags.GetFloat64("epsilon")
	}
	if flags.Changed("metric") {
		metricName, _ = flags.GetString("metric")
	}
	if flags.Changed("minkowski-p") {
		minkowskiP, _ = flags.GetFloat64("minkowski-p")
	}
	cfg.RandomBasis, _ = flags.GetBool("random-basis")
	cfg.Seed, _ = flags.GetInt64("seed")

	if metricName != "" {
		m, err := kfn.MetricByName(metricName, minkowskiP)
		if err != nil {
			return cfg, paths, err
		}
		cfg.Metric = m
	}

	paths.reference, _ = flags.GetString("reference")
	paths.query, _ = flags.GetString("query")
	paths.inputModel, _ = flags.GetString("input-model")
	paths.outputModel, _ = flags.GetString("output-model")
	paths.neighbors, _ = flags.GetString("neighbors")
	paths.distances, _ = flags.GetString("distances")

	return cfg, paths, nil
}
