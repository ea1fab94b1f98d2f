package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validConfig = `
[image]
rows = 1024
columns = 1024
crop_region = [[[0, 0], [10, 0], [10, 10], [0, 10]]]

[processing]
no_of_images_to_combine = 5
radii_of_extraction = [3, 4, 5]
hot_pixel_correction = false

[reference]
image = "ref.fit"
file = "ref.txt"
logfile = "ref.log"
color = "ref_color.txt"

[[input.nights]]
path = "/data/2024-01-02"

[output]
path = "/out"
`

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, validConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Image.Rows != 1024 {
		t.Fatalf("rows = %d, want 1024", cfg.Image.Rows)
	}
	if len(cfg.Input.Nights) != 1 {
		t.Fatalf("got %d nights, want 1", len(cfg.Input.Nights))
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeTempConfig(t, validConfig+"\nbogus_field = 1\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateRejectsMissingOutputPath(t *testing.T) {
	cfg := &Config{
		Image:      ImageConfig{Rows: 1, Columns: 1},
		Processing: ProcessingConfig{NoOfImagesToCombine: 1, RadiiOfExtraction: []int{3}},
		Reference:  ReferenceConfig{File: "ref.txt"},
		Input:      InputConfig{Nights: []InputNight{{Path: "/data"}}},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Field != "output.path" {
		t.Fatalf("field = %q, want output.path", ve.Field)
	}
}

func TestValidateRejectsNegativeBadPixelSigma(t *testing.T) {
	cfg := &Config{
		Image:      ImageConfig{Rows: 1, Columns: 1},
		Processing: ProcessingConfig{NoOfImagesToCombine: 1, RadiiOfExtraction: []int{3}, BadPixelSigmaLow: -1},
		Reference:  ReferenceConfig{File: "ref.txt"},
		Input:      InputConfig{Nights: []InputNight{{Path: "/data"}}},
		Output:     OutputConfig{Path: "/out"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for negative bad_pixel_sigma_low")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if ve.Field != "processing.bad_pixel_sigma_low" {
		t.Fatalf("field = %q, want processing.bad_pixel_sigma_low", ve.Field)
	}
}

func TestValidateRejectsZeroRadii(t *testing.T) {
	cfg := &Config{
		Image:      ImageConfig{Rows: 1, Columns: 1},
		Processing: ProcessingConfig{NoOfImagesToCombine: 1},
		Reference:  ReferenceConfig{File: "ref.txt"},
		Input:      InputConfig{Nights: []InputNight{{Path: "/data"}}},
		Output:     OutputConfig{Path: "/out"},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for empty radii list")
	}
}

func TestNightDateParsesISOFormat(t *testing.T) {
	d, err := NightDate("2024-03-14")
	if err != nil {
		t.Fatal(err)
	}
	if d.Year() != 2024 || d.Month() != 3 || d.Day() != 14 {
		t.Fatalf("got %v, want 2024-03-14", d)
	}
}

func TestNightDateParsesCompactFormat(t *testing.T) {
	d, err := NightDate("240314")
	if err != nil {
		t.Fatal(err)
	}
	if d.Year() != 2024 || d.Month() != 3 || d.Day() != 14 {
		t.Fatalf("got %v, want 2024-03-14", d)
	}
}

func TestNightDateRejectsGarbage(t *testing.T) {
	if _, err := NightDate("not-a-date"); err == nil {
		t.Fatal("expected error for unparseable folder name")
	}
}
