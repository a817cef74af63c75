package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/mat"

	"github.com/TrevorS/kfn"
)

// newLoggerFromFlags builds the zap logger from the persistent logging
// flags, overridable by the config file's log section.
func newLoggerFromFlags(cmd *cobra.Command) (*zap.Logger, error) {
	level, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
		fc, err := loadFileConfig(configPath)
		if err != nil {
			return nil, err
		}
		if !cmd.Flags().Changed("log-level") && fc.Log.Level != "" {
			level = fc.Log.Level
		}
		if !cmd.Flags().Changed("log-format") && fc.Log.Format != "" {
			format = fc.Log.Format
		}
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), lvl)
	return zap.New(core), nil
}

func loadDataset(path string) (*kfn.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()
	ds, err := kfn.LoadDatasetCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

func loadModel(path string) (*kfn.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening model %s: %w", path, err)
	}
	defer f.Close()
	m, err := kfn.LoadModel(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func saveModel(path string, m *kfn.Model) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating model file %s: %w", path, err)
	}
	if err := m.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// writeNeighbors writes the k × m neighbor matrix with one query point
// per CSV record, mirroring the one-point-per-row dataset convention.
func writeNeighbors(path string, nb *kfn.IndexMatrix) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows, cols := nb.Dims()
	rec := make([]string, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			rec[i] = strconv.Itoa(nb.At(i, j))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}

// writeDistances writes the k × m distance matrix with one query point
// per CSV record.
func writeDistances(path string, d *mat.Dense) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	rows, cols := d.Dims()
	rec := make([]string, rows)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			rec[i] = strconv.FormatFloat(d.At(i, j), 'g', -1, 64)
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}
	w.Flush()
	return w.Error()
}
