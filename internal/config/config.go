// Package config loads and validates the TOML run configuration,
// following the teacher's decode-time validation idiom (compare
// internal/ops/pre/preprocess.go's OpBadPixel.UnmarshalJSON) adapted to
// a plain post-decode Validate pass over a pelletier/go-toml/v2 struct,
// since go-toml/v2 does not call custom unmarshalers per-field the way
// the teacher's JSON-based config loader does.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the root of the run configuration, covering image geometry,
// processing parameters, the reference night, per-night inputs, and
// output location.
type Config struct {
	Image      ImageConfig      `toml:"image"`
	Processing ProcessingConfig `toml:"processing"`
	Reference  ReferenceConfig  `toml:"reference"`
	Input      InputConfig      `toml:"input"`
	Output     OutputConfig     `toml:"output"`
}

type ImageConfig struct {
	Rows       int     `toml:"rows"`
	Columns    int     `toml:"columns"`
	CropRegion [][][2]int `toml:"crop_region"`
}

type ProcessingConfig struct {
	NoOfImagesToCombine int     `toml:"no_of_images_to_combine"`
	RadiiOfExtraction   []int   `toml:"radii_of_extraction"`
	HotPixelCorrection  bool    `toml:"hot_pixel_correction"`
	BadPixelSigmaLow    float32 `toml:"bad_pixel_sigma_low"`
	BadPixelSigmaHigh   float32 `toml:"bad_pixel_sigma_high"`
}

type ReferenceConfig struct {
	Image   string `toml:"image"`
	File    string `toml:"file"`
	LogFile string `toml:"logfile"`
	Color   string `toml:"color"`
}

type InputNight struct {
	Path       string `toml:"path"`
	Masterflat string `toml:"masterflat"`
}

type InputConfig struct {
	Nights []InputNight `toml:"nights"`
}

type OutputConfig struct {
	Path       string `toml:"path"`
	StatusAddr string `toml:"status_addr"`
}

// ValidationError reports a single schema or semantic violation, naming
// the offending field path so operators can fix their TOML without
// re-reading this package's source.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// Load reads and decodes a TOML config file at path, rejecting unknown
// keys, then validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var cfg Config
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the bounded option set described in the configuration
// schema: positive dimensions, positive radii, non-negative crop-region
// vertices, at least one input night, and a non-empty output path.
func (c *Config) Validate() error {
	if c.Image.Rows <= 0 {
		return &ValidationError{"image.rows", "must be positive"}
	}
	if c.Image.Columns <= 0 {
		return &ValidationError{"image.columns", "must be positive"}
	}
	for pi, poly := range c.Image.CropRegion {
		for vi, v := range poly {
			if v[0] < 0 || v[1] < 0 {
				return &ValidationError{fmt.Sprintf("image.crop_region[%d][%d]", pi, vi), "coordinates must be non-negative"}
			}
		}
	}

	if c.Processing.NoOfImagesToCombine <= 0 {
		return &ValidationError{"processing.no_of_images_to_combine", "must be positive"}
	}
	if len(c.Processing.RadiiOfExtraction) == 0 {
		return &ValidationError{"processing.radii_of_extraction", "must list at least one radius"}
	}
	for i, r := range c.Processing.RadiiOfExtraction {
		if r <= 0 {
			return &ValidationError{fmt.Sprintf("processing.radii_of_extraction[%d]", i), "must be positive"}
		}
	}
	if c.Processing.BadPixelSigmaLow < 0 {
		return &ValidationError{"processing.bad_pixel_sigma_low", "must be non-negative"}
	}
	if c.Processing.BadPixelSigmaHigh < 0 {
		return &ValidationError{"processing.bad_pixel_sigma_high", "must be non-negative"}
	}

	if c.Reference.File == "" {
		return &ValidationError{"reference.file", "must be set"}
	}

	if len(c.Input.Nights) == 0 {
		return &ValidationError{"input.nights", "must list at least one night"}
	}
	for i, n := range c.Input.Nights {
		if n.Path == "" {
			return &ValidationError{fmt.Sprintf("input.nights[%d].path", i), "must be set"}
		}
	}

	if c.Output.Path == "" {
		return &ValidationError{"output.path", "must be set"}
	}

	return nil
}

// NightDate parses a night's date from its input folder name. The whole
// name must be the date, written as "Month D, YYYY" (for example
// "March 14, 2024"), YYYY-MM-DD, or YYMMDD.
func NightDate(folderName string) (time.Time, error) {
	if t, err := time.Parse("January 2, 2006", folderName); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", folderName); err == nil {
		return t, nil
	}
	if t, err := time.Parse("060102", folderName); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("config: cannot parse night date from folder name %q", folderName)
}
