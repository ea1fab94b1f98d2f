// Package m23file implements the polymorphic file-kind trait used across
// the pipeline to name, recognize, and parse the various text and FITS
// files produced by each processing stage.
//
// The original Python implementation exposes one standalone class per
// file role, each with its own path/is_valid_file_name/generate_file_name
// methods (original_source/m23/file/*.py: raw_image_file.py,
// aligned_combined_file.py, log_file_combined_file.py,
// flux_log_combined_file.py, color_normalized_file.py,
// reference_log_file.py, normfactor_file.py, sky_bg_file.py). This
// package unifies them into one Kind-tagged Name type, recognized by Parse
// and built by the Generate*Name functions, since Go has no duck typing to
// lean on for the original's pattern.
package m23file

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// Kind identifies which role a file plays in the pipeline.
type Kind int

const (
	KindRaw Kind = iota
	KindAlignedCombined
	KindLogCombined
	KindFluxLogCombined
	KindMasterflat
	KindColorNormalized
	KindNormFactor
	KindSkyBackground
	KindReferenceLog
	KindRIColor
)

func (k Kind) String() string {
	switch k {
	case KindRaw:
		return "Raw"
	case KindAlignedCombined:
		return "AlignedCombined"
	case KindLogCombined:
		return "LogCombined"
	case KindFluxLogCombined:
		return "FluxLogCombined"
	case KindMasterflat:
		return "Masterflat"
	case KindColorNormalized:
		return "ColorNormalized"
	case KindNormFactor:
		return "NormFactor"
	case KindSkyBackground:
		return "SkyBackground"
	case KindReferenceLog:
		return "ReferenceLog"
	case KindRIColor:
		return "RIColor"
	default:
		return "Unknown"
	}
}

var (
	rawRe             = regexp.MustCompile(`^m23_(\d+\.?\d*)-(\d+)\.fit$`)
	alignedCombinedRe = rawRe
	logCombinedRe     = regexp.MustCompile(`^(\d{2}-\d{2}-\d{2})_m23_(\d+\.?\d*)-ref_revised_71_(\d{3,4})_flux\.txt$`)
	fluxLogCombinedRe = regexp.MustCompile(`^(\d{2}-\d{2}-\d{2})_m23_(\d+\.\d*)-(\d{1,4})_flux\.txt$`)
	normfactorRe      = regexp.MustCompile(`^(\d{2}-\d{2}-\d{2})_m23_(\d+\.\d*)_normfactor\.txt$`)
	skyBackgroundRe   = regexp.MustCompile(`^(\d{2}-\d{2}-\d{2})_m23_(\d+\.\d*)_sky_bg\.txt$`)
	colorNormalizedRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})_Normalized_(\w+)_Pixel_Radius\.txt$`)
)

// Name describes a parsed or generated filename for one file kind,
// carrying every field recoverable from the name itself.
type Name struct {
	Kind        Kind
	NightDate   time.Time
	ImgDuration float64
	ImgNumber   int
	StarNumber  int
	Radius      int
	RadiusWord  string
}

// Parse attempts to recognize fileName as one of the known kinds, trying
// each in turn. Returns ok=false if no pattern matches.
func Parse(fileName string) (Name, bool) {
	if m := rawRe.FindStringSubmatch(fileName); m != nil {
		dur, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.Atoi(m[2])
		return Name{Kind: KindRaw, ImgDuration: dur, ImgNumber: num}, true
	}
	if m := logCombinedRe.FindStringSubmatch(fileName); m != nil {
		date, _ := time.Parse("01-02-06", m[1])
		dur, _ := strconv.ParseFloat(m[2], 64)
		star, _ := strconv.Atoi(m[3])
		return Name{Kind: KindLogCombined, NightDate: date, ImgDuration: dur, StarNumber: star}, true
	}
	if m := fluxLogCombinedRe.FindStringSubmatch(fileName); m != nil {
		date, _ := time.Parse("01-02-06", m[1])
		dur, _ := strconv.ParseFloat(m[2], 64)
		star, _ := strconv.Atoi(m[3])
		return Name{Kind: KindFluxLogCombined, NightDate: date, ImgDuration: dur, StarNumber: star}, true
	}
	if m := normfactorRe.FindStringSubmatch(fileName); m != nil {
		date, _ := time.Parse("01-02-06", m[1])
		dur, _ := strconv.ParseFloat(m[2], 64)
		return Name{Kind: KindNormFactor, NightDate: date, ImgDuration: dur}, true
	}
	if m := skyBackgroundRe.FindStringSubmatch(fileName); m != nil {
		date, _ := time.Parse("01-02-06", m[1])
		dur, _ := strconv.ParseFloat(m[2], 64)
		return Name{Kind: KindSkyBackground, NightDate: date, ImgDuration: dur}, true
	}
	if m := colorNormalizedRe.FindStringSubmatch(fileName); m != nil {
		date, _ := time.Parse("2006-01-02", m[1])
		return Name{Kind: KindColorNormalized, NightDate: date, RadiusWord: m[2]}, true
	}
	return Name{}, false
}

// GenerateRawName returns the canonical raw/aligned-combined frame name.
func GenerateRawName(duration float64, imgNumber int) string {
	return fmt.Sprintf("m23_%g-%04d.fit", duration, imgNumber)
}

// GenerateLogCombinedName returns the canonical LogFileCombined name.
func GenerateLogCombinedName(nightDate time.Time, duration float64, starNo int) string {
	return fmt.Sprintf("%s_m23_%g-ref_revised_71_%04d_flux.txt", nightDate.Format("01-02-06"), duration, starNo)
}

// GenerateFluxLogCombinedName returns the canonical FluxLogCombined name.
func GenerateFluxLogCombinedName(nightDate time.Time, duration float64, starNo int) string {
	return fmt.Sprintf("%s_m23_%g-%04d_flux.txt", nightDate.Format("01-02-06"), duration, starNo)
}

// GenerateNormFactorName returns the canonical NormFactor file name.
func GenerateNormFactorName(nightDate time.Time, duration float64) string {
	return fmt.Sprintf("%s_m23_%g_normfactor.txt", nightDate.Format("01-02-06"), duration)
}

// GenerateSkyBackgroundName returns the canonical sky background summary
// file name.
func GenerateSkyBackgroundName(nightDate time.Time, duration float64) string {
	return fmt.Sprintf("%s_m23_%g_sky_bg.txt", nightDate.Format("01-02-06"), duration)
}

// GenerateColorNormalizedName returns the canonical per-radius
// color-normalized output file name.
func GenerateColorNormalizedName(nightDate time.Time, radiusWord string) string {
	return fmt.Sprintf("%s_Normalized_%s_Pixel_Radius.txt", nightDate.Format("2006-01-02"), radiusWord)
}
