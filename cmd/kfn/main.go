package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TrevorS/kfn"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "kfn",
		Short: "k-furthest-neighbor search",
		Long: `kfn finds, for each query point, the k reference points at maximum
distance. It builds a spatial index (KD-tree or ball tree) over the
reference set, searches it with an exact or approximate strategy, and can
save the built index as a model for reuse without re-indexing.`,
	}

	rootCmd.PersistentFlags().String("config", "", "YAML config file with default parameters")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	rootCmd.AddCommand(
		newSearchCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kfn version %s\n", version)
		},
	}
}

func newSearchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Run a furthest-neighbor search",
		Long: `search reads the reference (and optionally query) dataset from CSV,
finds the k furthest neighbors of every query point, and writes the
neighbor index and distance matrices as CSV. Passing --output-model saves
the built index; a later run can supply it via --input-model instead of
--reference. With no --k the run only trains a model.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLoggerFromFlags(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, paths, err := resolveSearchConfig(cmd)
			if err != nil {
				return err
			}

			if paths.reference != "" {
				ds, err := loadDataset(paths.reference)
				if err != nil {
					return err
				}
				cfg.Reference = ds
				logger.Debug("loaded reference set",
					zap.String("path", paths.reference),
					zap.Int("points", ds.Len()),
					zap.Int("dims", ds.Dims()))
			}
			if paths.query != "" {
				ds, err := loadDataset(paths.query)
				if err != nil {
					return err
				}
				cfg.Query = ds
				logger.Debug("loaded query set",
					zap.String("path", paths.query),
					zap.Int("points", ds.Len()),
					zap.Int("dims", ds.Dims()))
			}
			if paths.inputModel != "" {
				m, err := loadModel(paths.inputModel)
				if err != nil {
					return err
				}
				cfg.InputModel = m
				logger.Debug("loaded input model",
					zap.String("path", paths.inputModel),
					zap.Int("points", m.NumPoints()),
					zap.Int("dims", m.Dims()))
			}

			start := time.Now()
			res, err := kfn.Search(cfg)
			if err != nil {
				return err
			}
			logger.Info("search complete",
				zap.String("algorithm", string(cfg.Algorithm)),
				zap.Int("k", cfg.K),
				zap.Duration("elapsed", time.Since(start)))

			if res.Neighbors != nil {
				if paths.neighbors != "" {
					if err := writeNeighbors(paths.neighbors, res.Neighbors); err != nil {
						return err
					}
				}
				if paths.distances != "" {
					if err := writeDistances(paths.distances, res.Distances); err != nil {
						return err
					}
				}
			}
			if res.Model != nil && paths.outputModel != "" {
				if err := saveModel(paths.outputModel, res.Model); err != nil {
					return err
				}
				logger.Info("saved model", zap.String("path", paths.outputModel))
			}

			return nil
		},
	}

	cmd.Flags().String("reference", "", "Reference dataset CSV (one point per row)")
	cmd.Flags().String("query", "", "Query dataset CSV (one point per row)")
	cmd.Flags().Int("k", 0, "Number of furthest neighbors per query point")
	cmd.Flags().String("algorithm", "", "Search strategy: dual_tree, single_tree, naive, greedy")
	cmd.Flags().String("tree-type", "", "Spatial index: kd or ball")
	cmd.Flags().Int("leaf-size", 0, "Maximum points per tree leaf")
	cmd.Flags().Float64("epsilon", 0, "Relative approximation in [0, 1); 0 is exact")
	cmd.Flags().String("metric", "", "Distance metric: euclidean, manhattan, chebyshev, minkowski")
	cmd.Flags().Float64("minkowski-p", 2, "Exponent for the minkowski metric")
	cmd.Flags().String("input-model", "", "Load a trained model instead of --reference")
	cmd.Flags().String("output-model", "", "Save the trained model to this path")
	cmd.Flags().String("neighbors", "", "Write the neighbor index matrix CSV to this path")
	cmd.Flags().String("distances", "", "Write the distance matrix CSV to this path")
	cmd.Flags().Bool("random-basis", false, "Rotate data by a random orthogonal basis before indexing")
	cmd.Flags().Int64("seed", 0, "Seed for --random-basis")

	return cmd
}
