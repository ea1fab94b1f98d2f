package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/LutherAstrophysics/m23/internal/calib"
	"github.com/LutherAstrophysics/m23/internal/config"
	"github.com/LutherAstrophysics/m23/internal/fits"
	"github.com/LutherAstrophysics/m23/internal/night"
	"github.com/LutherAstrophysics/m23/internal/star"
	"github.com/LutherAstrophysics/m23/internal/statusserver"
)

const version = "0.1.0"

const (
	referenceDetectRadius   = 16
	referenceDetectSigma    = 15
	referenceDetectBpSigma  = -1
	referenceDetectInOutRat = 1.4
	alignerK                = 12
)

func main() {
	root := &cobra.Command{
		Use:   "m23",
		Short: "Long-term photometric monitoring pipeline",
	}
	root.AddCommand(runCmd(), validateCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config.toml>",
		Short: "Parse and validate a configuration file without processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(args[0]); err != nil {
				return err
			}
			fmt.Println("config is valid")
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <config.toml>",
		Short: "Run the full pipeline for every night in the configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(args[0])
		},
	}
}

func runPipeline(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	aligner, err := buildReferenceAligner(cfg)
	if err != nil {
		return fmt.Errorf("building reference aligner: %w", err)
	}

	tracker := statusserver.NewTracker()
	if cfg.Output.StatusAddr != "" {
		go func() {
			if err := statusserver.Serve(tracker, cfg.Output.StatusAddr); err != nil {
				fmt.Fprintf(os.Stderr, "status server: %v\n", err)
			}
		}()
	}

	settings := night.Settings{
		OutputPath:          cfg.Output.Path,
		Rows:                int32(cfg.Image.Rows),
		Columns:             int32(cfg.Image.Columns),
		CropRegion:          toCalibCropRegion(cfg.Image.CropRegion),
		NoOfImagesToCombine: cfg.Processing.NoOfImagesToCombine,
		RadiiOfExtraction:   cfg.Processing.RadiiOfExtraction,
		HotPixelCorrection:  cfg.Processing.HotPixelCorrection,
		BadPixelSigmaLow:    cfg.Processing.BadPixelSigmaLow,
		BadPixelSigmaHigh:   cfg.Processing.BadPixelSigmaHigh,
		ReferenceFile:       cfg.Reference.File,
		ReferenceLogFile:    cfg.Reference.LogFile,
		ReferenceColorFile:  cfg.Reference.Color,
		Aligner:             aligner,
		MaxConcurrentNights: night.DefaultMaxConcurrentNights(int32(cfg.Image.Rows), int32(cfg.Image.Columns)),
		OnStage: func(date time.Time, stage night.Stage, err error) {
			tracker.Set(date.Format("2006-01-02"), stage, err)
		},
	}

	inputs := make([]night.Input, len(cfg.Input.Nights))
	for i, n := range cfg.Input.Nights {
		date, err := config.NightDate(filepath.Base(n.Path))
		if err != nil {
			return err
		}
		inputs[i] = night.Input{Date: date, Path: n.Path, Masterflat: n.Masterflat}
	}

	errs := night.ProcessAll(inputs, settings, os.Stdout)
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, e)
		}
		return fmt.Errorf("%d night(s) failed", len(errs))
	}
	return nil
}

func toCalibCropRegion(polys [][][2]int) calib.CropRegion {
	out := calib.CropRegion{Polygons: make([][]calib.Point, len(polys))}
	for i, poly := range polys {
		pts := make([]calib.Point, len(poly))
		for j, v := range poly {
			pts[j] = calib.Point{X: int32(v[0]), Y: int32(v[1])}
		}
		out.Polygons[i] = pts
	}
	return out
}

// buildReferenceAligner detects stars in the configured reference image
// and builds a star.Aligner against them, following the same detection
// parameters the per-night pipeline uses for its own calibrated frames.
func buildReferenceAligner(cfg *config.Config) (*star.Aligner, error) {
	refImg, err := fits.NewImageFromFile(cfg.Reference.Image, 0, io.Discard)
	if err != nil {
		return nil, err
	}
	refStars, _, _ := star.FindStars(refImg.Data, refImg.Naxisn[0], refImg.Stats.Location(), refImg.Stats.Scale(),
		referenceDetectSigma, referenceDetectBpSigma, referenceDetectInOutRat, referenceDetectRadius, nil)
	return star.NewAligner(refImg.Naxisn, refStars, alignerK), nil
}
