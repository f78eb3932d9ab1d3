// Command boldpost is a thin shim over the denoising core. Input discovery,
// dataset validation and report rendering live in the surrounding tooling;
// this binary accepts already-extracted matrices as TSV files and writes the
// core's derivative files next to them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"boldpost/internal/models"
	"boldpost/pkg/config"
	"boldpost/pkg/pipeline"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "boldpost",
		Short:         "Post-process fMRI time series: censoring, denoising and resting-state metrics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "boldpost.yaml", "Path to YAML configuration")

	root.AddCommand(validateCommand(&configPath))
	root.AddCommand(processCommand(&configPath))
	return root
}

func validateCommand(configPath *string) *cobra.Command {
	var tr float64

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration against a repetition time",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath, tr)
			if err != nil {
				return err
			}
			fmt.Printf("configuration valid for TR %gs\n", tr)
			fmt.Printf("  fd threshold:      %g mm\n", cfg.Censor.FDThreshold)
			fmt.Printf("  motion filter:     %s\n", cfg.MotionFilter.Type)
			fmt.Printf("  bandpass:          %g-%g Hz (enabled: %v)\n",
				cfg.Bandpass.HighPass, cfg.Bandpass.LowPass, cfg.BandpassEnabled())
			fmt.Printf("  nuisance strategy: %s\n", cfg.Denoise.Strategy)
			return nil
		},
	}
	cmd.Flags().Float64Var(&tr, "tr", 2.0, "Repetition time in seconds")
	return cmd
}

func processCommand(configPath *string) *cobra.Command {
	var (
		boldPath      string
		confoundsPath string
		outDir        string
		tr            float64
		runName       string
	)

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Denoise one run supplied as TSV matrices",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(*configPath, tr)
			if err != nil {
				return err
			}

			boldData, boldNames, err := readMatrix(boldPath)
			if err != nil {
				return fmt.Errorf("reading BOLD matrix: %w", err)
			}
			confData, confNames, err := readMatrix(confoundsPath)
			if err != nil {
				return fmt.Errorf("reading confounds: %w", err)
			}
			confounds, err := models.NewConfoundMatrix(confData, confNames)
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			runner := pipeline.NewRunner(cfg, logger)
			artifacts, err := runner.Process(context.Background(), &pipeline.RunInput{
				Name:      runName,
				BOLD:      models.NewTimeSeriesMatrix(boldData),
				Confounds: confounds,
				TR:        tr,
			})
			if err != nil {
				if pipeline.IsInsufficientData(err) {
					logger.Warn("run stopped early, no derivatives written", "reason", err)
					return nil
				}
				return err
			}

			if err := writeArtifacts(outDir, runName, boldNames, artifacts); err != nil {
				return err
			}
			fmt.Printf("derivatives written to %s\n", outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&boldPath, "bold", "", "TSV file with the T x V BOLD matrix (required)")
	cmd.Flags().StringVar(&confoundsPath, "confounds", "", "TSV file with the confound table (required)")
	cmd.Flags().StringVar(&outDir, "out", "derivatives", "Output directory")
	cmd.Flags().Float64Var(&tr, "tr", 2.0, "Repetition time in seconds")
	cmd.Flags().StringVar(&runName, "run", "run-1", "Run identifier used in output names")
	_ = cmd.MarkFlagRequired("bold")
	_ = cmd.MarkFlagRequired("confounds")
	return cmd
}

func readMatrix(path string) (data *mat.Dense, names []string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return models.ReadMatrixTSV(f)
}

func writeArtifacts(outDir, runName string, seriesNames []string, artifacts *models.RunArtifacts) error {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	write := func(name string, fn func(f *os.File) error) error {
		f, err := os.Create(filepath.Join(outDir, runName+"_"+name))
		if err != nil {
			return err
		}
		defer f.Close()
		return fn(f)
	}

	if err := write("desc-denoised_bold.tsv", func(f *os.File) error {
		return models.WriteMatrixTSV(f, artifacts.Denoised, seriesNames)
	}); err != nil {
		return err
	}
	if artifacts.DenoisedInterpolated != nil {
		if err := write("desc-interpolated_bold.tsv", func(f *os.File) error {
			return models.WriteMatrixTSV(f, artifacts.DenoisedInterpolated, seriesNames)
		}); err != nil {
			return err
		}
	}
	if err := write("outliers.tsv", func(f *os.File) error {
		return models.WriteMaskTSV(f, artifacts.Mask)
	}); err != nil {
		return err
	}
	if err := write("desc-filtered_motion.tsv", func(f *os.File) error {
		return models.WriteMotionTSV(f, artifacts.FilteredMotion, artifacts.FD)
	}); err != nil {
		return err
	}
	return nil
}
