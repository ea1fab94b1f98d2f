// Package night drives the per-night processing pipeline: calibration,
// alignment, combination, extraction, and normalization, tracked through
// an explicit idempotent state machine so that a re-run of a partially
// processed night resumes (and overwrites) rather than appends.
//
// Grounded on original_source/src/m23/processor/process_nights.py's
// process_night/start_data_processing_auxiliary (per-night output
// clearing, mp.Pool().map() across nights) and internal/ops/operator.go's
// OpParallel semaphore-bounded worker pool for the concurrency shape.
package night

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"github.com/pbnjay/memory"

	"github.com/LutherAstrophysics/m23/internal/calib"
	"github.com/LutherAstrophysics/m23/internal/combine"
	"github.com/LutherAstrophysics/m23/internal/extract"
	"github.com/LutherAstrophysics/m23/internal/fits"
	"github.com/LutherAstrophysics/m23/internal/internight"
	"github.com/LutherAstrophysics/m23/internal/intranight"
	"github.com/LutherAstrophysics/m23/internal/m23file"
	"github.com/LutherAstrophysics/m23/internal/star"
)

// Stage names one step of a night's idempotent state machine. Stages
// always advance in this order; reprocessing a night re-enters at
// StagePrepared and clears every later stage's output before recomputing.
type Stage int

const (
	StagePrepared Stage = iota
	StageCalibrated
	StageAlignedCombined
	StageExtracted
	StageIntraNormalized
	StageInterNormalized
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StagePrepared:
		return "prepared"
	case StageCalibrated:
		return "calibrated"
	case StageAlignedCombined:
		return "aligned-combined"
	case StageExtracted:
		return "extracted"
	case StageIntraNormalized:
		return "intra-normalized"
	case StageInterNormalized:
		return "inter-normalized"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Input describes one night's raw data location and night-specific
// overrides, matching config's input.nights[] entries.
type Input struct {
	Date       time.Time
	Path       string // raw images + input_calibration subfolder
	Masterflat string // optional pre-supplied masterflat FITS path
}

// detection parameters for locating stars in each calibrated frame before
// alignment, per internal/ops/pre/preprocess.go's align-detector defaults.
const (
	alignDetectRadius   = 16
	alignDetectSigma    = 15
	alignDetectBpSigma  = -1
	alignDetectInOutRat = 1.4
	alignerK            = 12
)

// Settings carries the run-wide options every night is processed with.
type Settings struct {
	OutputPath          string
	Rows, Columns       int32
	CropRegion          calib.CropRegion
	NoOfImagesToCombine int
	RadiiOfExtraction   []int
	HotPixelCorrection  bool
	BadPixelSigmaLow    float32
	BadPixelSigmaHigh   float32

	ReferenceFile      string // catalog positions used for extraction
	ReferenceLogFile   string // reference night's per-star ADU, for inter-night ratios
	ReferenceColorFile string // star -> R-I color table

	Aligner             *star.Aligner
	MaxConcurrentNights int64

	// OnStage, if set, is invoked once per night when it ends: with
	// StageDone on success, or with StageFailed and the error on failure.
	// Intermediate stages are not reported. It lets a status server mirror
	// each night's outcome without the night package depending on it
	// directly.
	OnStage func(date time.Time, stage Stage, err error)
}

// Night tracks one input night's progress through the pipeline.
type Night struct {
	Input Input
	Stage Stage
	Err   error
}

// OutputFolder returns the per-night output directory name, following
// get_output_folder_name_from_night_date's convention.
func OutputFolder(settings Settings, date time.Time) string {
	return filepath.Join(settings.OutputPath, date.Format("2006-01-02"))
}

// ErrNightFailed wraps a stage-scoped processing error with the night's
// date, so a batch run can report which nights failed without aborting
// the others.
type ErrNightFailed struct {
	Date  time.Time
	Stage Stage
	Err   error
}

func (e *ErrNightFailed) Error() string {
	return fmt.Sprintf("night %s failed at stage %s: %v", e.Date.Format("2006-01-02"), e.Stage, e.Err)
}

func (e *ErrNightFailed) Unwrap() error { return e.Err }

// framesInFlightPerNight estimates how many whole-frame-sized float32
// buffers one night's in-flight pipeline holds at once (raw, calibrated,
// aligned, and combined copies of a single window), used to size a
// memory-safe default concurrency bound.
const framesInFlightPerNight = 4

// DefaultMaxConcurrentNights picks a concurrency bound for ProcessAll from
// physical memory and core count, following the teacher's
// internal/ops/stack/stackmultibatch.go OpStackMultiBatch.partition sizing:
// divide available memory by the per-frame footprint, then cap by
// GOMAXPROCS so CPU-bound alignment/extraction work isn't oversubscribed.
func DefaultMaxConcurrentNights(rows, columns int32) int64 {
	bytesPerFrame := int64(rows) * int64(columns) * 4 * framesInFlightPerNight
	if bytesPerFrame <= 0 {
		return 1
	}
	availableByMemory := int64(memory.TotalMemory()) / bytesPerFrame
	maxThreads := int64(runtime.GOMAXPROCS(0))
	if availableByMemory < maxThreads {
		maxThreads = availableByMemory
	}
	if maxThreads < 1 {
		maxThreads = 1
	}
	return maxThreads
}

// ProcessAll processes every night in inputs, bounding concurrency across
// nights to settings.MaxConcurrentNights (processing within a night stays
// sequential), and returns every failure rather than stopping at the
// first one.
func ProcessAll(inputs []Input, settings Settings, logWriter io.Writer) []error {
	sem := make(chan struct{}, settings.MaxConcurrentNights)
	errCh := make(chan error, len(inputs))

	for _, in := range inputs {
		sem <- struct{}{}
		go func(in Input) {
			defer func() { <-sem }()
			n := &Night{Input: in, Stage: StagePrepared}
			if err := processNight(n, settings, logWriter); err != nil {
				failedAt := n.Stage
				n.Stage = StageFailed
				n.Err = err
				if settings.OnStage != nil {
					settings.OnStage(in.Date, n.Stage, err)
				}
				errCh <- &ErrNightFailed{Date: in.Date, Stage: failedAt, Err: err}
				return
			}
			n.Stage = StageDone
			if settings.OnStage != nil {
				settings.OnStage(in.Date, n.Stage, nil)
			}
			errCh <- nil
		}(in)
	}
	for i := 0; i < cap(sem); i++ {
		sem <- struct{}{}
	}

	var errs []error
	for range inputs {
		if err := <-errCh; err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// processNight runs a single night end-to-end, clearing each stage's
// output folder before recomputing it so a re-run is idempotent.
func processNight(n *Night, settings Settings, logWriter io.Writer) error {
	outputDir := OutputFolder(settings, n.Input.Date)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return err
	}

	calibDir := filepath.Join(outputDir, "Calibration Frames")
	alignedDir := filepath.Join(outputDir, "Aligned Combined")
	fluxDir := filepath.Join(outputDir, "Flux Logs Combined")
	for _, dir := range []string{calibDir, alignedDir, fluxDir} {
		if err := clearDir(dir); err != nil {
			return err
		}
	}

	rawFrames, darkFrames, flatFrames, err := loadRawAndCalibrationFrames(n.Input)
	if err != nil {
		return err
	}
	n.Stage = StagePrepared

	calibrator, err := buildCalibrator(darkFrames, flatFrames, n.Input, settings)
	if err != nil {
		return err
	}
	n.Stage = StageCalibrated

	refStars, err := extractionRefStars(settings)
	if err != nil {
		return err
	}

	fluxByRadiusByStar, err := alignCombineExtract(rawFrames, calibrator, refStars, settings, alignedDir, logWriter)
	if err != nil {
		return err
	}
	n.Stage = StageAlignedCombined
	n.Stage = StageExtracted

	refPositions := make([]intranight.StarPosition, len(refStars))
	for i, r := range refStars {
		refPositions[i] = intranight.StarPosition{X: r.X, Y: r.Y}
	}

	for _, radius := range settings.RadiiOfExtraction {
		radiusDir := filepath.Join(fluxDir, fmt.Sprintf("%dx%d", radius, radius))
		if err := os.MkdirAll(radiusDir, 0o755); err != nil {
			return err
		}

		if got := len(fluxByRadiusByStar[radius].images); got < 4 {
			return fmt.Errorf("radius %d: insufficient samples for intra-night normalization: %d combined images, need at least 4", radius, got)
		}
		images := make([]intranight.Image, len(fluxByRadiusByStar[radius].images))
		for i, frameFlux := range fluxByRadiusByStar[radius].images {
			images[i] = intranight.Image{ADU: frameFlux, Positions: refPositions}
		}
		intraResult := intranight.Normalize(images, refPositions, float32(settings.Columns), float32(settings.Rows))
		n.Stage = StageIntraNormalized

		if err := writeFluxLogCombined(radiusDir, refStars, intraResult); err != nil {
			return err
		}

		if settings.ReferenceLogFile != "" && settings.ReferenceColorFile != "" {
			if err := runInternightNormalization(radiusDir, radius, n.Input.Date, settings, refStars, intraResult); err != nil {
				return err
			}
			n.Stage = StageInterNormalized
		}
	}

	return nil
}

func clearDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func loadRawAndCalibrationFrames(in Input) (raw, darks, flats []*fits.Image, err error) {
	rawDir := filepath.Join(in.Path, "m23")
	calDir := filepath.Join(in.Path, "Calibration Frames")

	raw, err = loadFitsGlob(filepath.Join(rawDir, "*.fit"))
	if err != nil {
		return nil, nil, nil, err
	}
	darks, err = loadFitsGlob(filepath.Join(calDir, "*dark*.fit"))
	if err != nil {
		return nil, nil, nil, err
	}
	if in.Masterflat == "" {
		flats, err = loadFitsGlob(filepath.Join(calDir, "*flat*.fit"))
		if err != nil {
			return nil, nil, nil, err
		}
	}
	return raw, darks, flats, nil
}

func loadFitsGlob(pattern string) ([]*fits.Image, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	images := make([]*fits.Image, 0, len(matches))
	for i, m := range matches {
		img, err := fits.NewImageFromFile(m, i, io.Discard)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func buildCalibrator(darks, flats []*fits.Image, in Input, settings Settings) (*calib.Calibrator, error) {
	masterDark, err := calib.BuildMasterDark(darks)
	if err != nil {
		return nil, err
	}

	var masterFlat *fits.Image
	if in.Masterflat != "" {
		masterFlat, err = fits.NewImageFromFile(in.Masterflat, 0, io.Discard)
		if err != nil {
			return nil, err
		}
	} else {
		masterFlat, err = calib.BuildMasterFlat(flats, masterDark)
		if err != nil {
			return nil, err
		}
	}

	c := calib.NewCalibrator(masterDark, masterFlat, settings.CropRegion, nil)
	c.HotPixelCorrection = settings.HotPixelCorrection
	c.BadPixelSigmaLow = settings.BadPixelSigmaLow
	c.BadPixelSigmaHigh = settings.BadPixelSigmaHigh
	return c, nil
}

func extractionRefStars(settings Settings) ([]extract.RefStar, error) {
	catalog, err := m23file.ReadReferenceLogFile(settings.ReferenceFile)
	if err != nil {
		return nil, err
	}
	numbers := make([]int, 0, len(catalog))
	for n := range catalog {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	refs := make([]extract.RefStar, len(numbers))
	for i, n := range numbers {
		refs[i] = extract.RefStar{Number: n, X: catalog[n].X, Y: catalog[n].Y}
	}
	return refs, nil
}

type radiusFluxData struct {
	images [][]float32 // images[frameIndex][starIndex]
}

// alignCombineExtract calibrates, aligns, combines and extracts flux for
// every window of settings.NoOfImagesToCombine raw frames, following
// process_night's discard-whole-window-on-alignment-failure behavior.
func alignCombineExtract(rawFrames []*fits.Image, calibrator *calib.Calibrator, refStars []extract.RefStar, settings Settings, alignedDir string, logWriter io.Writer) (map[int]radiusFluxData, error) {
	result := make(map[int]radiusFluxData, len(settings.RadiiOfExtraction))
	for _, radius := range settings.RadiiOfExtraction {
		result[radius] = radiusFluxData{}
	}

	windows := combine.Windows(len(rawFrames), settings.NoOfImagesToCombine)
	for winIdx, w := range windows {
		aligned := make([]*fits.Image, 0, w[1]-w[0])
		for _, frame := range rawFrames[w[0]:w[1]] {
			c, err := calibrator.Calibrate(frame)
			if err != nil {
				return nil, err
			}

			stars, _, _ := star.FindStars(c.Data, c.Naxisn[0], c.Stats.Location(), c.Stats.Scale(),
				alignDetectSigma, alignDetectBpSigma, alignDetectInOutRat, alignDetectRadius, nil)
			trans, _ := settings.Aligner.Align(c.Naxisn, stars, c.ID)

			a, err := c.Project(settings.Aligner.Naxisn, trans, 0)
			if err != nil {
				fmt.Fprintf(logWriter, "skipping combination %d: projection failed: %v\n", winIdx, err)
				aligned = nil
				break
			}
			aligned = append(aligned, a)
		}
		if len(aligned) < settings.NoOfImagesToCombine {
			continue
		}

		sum, err := combine.Sum(aligned)
		if err != nil {
			return nil, err
		}
		outName := filepath.Join(alignedDir, fmt.Sprintf("m23_7.0-%03d.fit", winIdx+1))
		if err := sum.WriteFile(outName); err != nil {
			return nil, err
		}

		width, height := int(sum.Naxisn[0]), int(sum.Naxisn[1])
		extraction := extract.ExtractAll(sum.Data, width, height, refStars, settings.RadiiOfExtraction)
		for _, radius := range settings.RadiiOfExtraction {
			flux := make([]float32, len(extraction))
			for i, e := range extraction {
				flux[i] = e.RadiiADU[radius]
			}
			r := result[radius]
			r.images = append(r.images, flux)
			result[radius] = r
		}
	}
	return result, nil
}

func writeFluxLogCombined(radiusDir string, refStars []extract.RefStar, intra intranight.Result) error {
	for s, series := range intra.StarFluxes {
		if s >= len(refStars) {
			continue
		}
		data := m23file.FluxLogCombined{
			StartImg: 1,
			EndImg:   len(series),
			X:        refStars[s].X,
			Y:        refStars[s].Y,
			Flux:     series,
		}
		path := filepath.Join(radiusDir, fmt.Sprintf("%d.txt", refStars[s].Number))
		if err := m23file.WriteFluxLogCombinedFile(path, data); err != nil {
			return err
		}
	}
	return nil
}

func runInternightNormalization(radiusDir string, radius int, date time.Time, settings Settings, refStars []extract.RefStar, intra intranight.Result) error {
	referenceStars, err := m23file.ReadReferenceLogFile(settings.ReferenceLogFile)
	if err != nil {
		return err
	}
	colorTable, err := m23file.ReadRIColorTableFile(settings.ReferenceColorFile)
	if err != nil {
		return errors.New("no color table available: " + err.Error())
	}

	inputs := make([]internight.StarInput, len(intra.StarFluxes))
	for s, series := range intra.StarFluxes {
		starNo := refStars[s].Number
		median := intranight.SpecialMedian(series, intra.NormFactors)
		attendance := m23file.Attendance(series)
		ref, haveRef := referenceStars[starNo]
		refADU := ref.StarADU
		if !haveRef {
			refADU = float32(math.NaN())
		}
		color, haveColor := colorTable[starNo]
		if !haveColor {
			color = float32(0)
		}
		inputs[s] = internight.StarInput{
			StarNumber:   starNo,
			MedianFlux:   median,
			Attendance:   float32(attendance),
			MeasuredRI:   color,
			ReferenceADU: refADU,
		}
	}

	outputs := internight.Normalize(inputs, radius)
	data := make(m23file.ColorNormalizedData, len(outputs))
	for _, o := range outputs {
		data[o.StarNumber] = m23file.ColorNormalizedEntry{
			MedianFlux:           o.MedianFlux,
			NormalizedMedianFlux: o.NormalizedMedianFlux,
			NormFactor:           o.NormFactor,
			MeasuredMeanRI:       o.MeasuredMeanRI,
			UsedMeanRI:           o.UsedMeanRI,
		}
	}

	path := filepath.Join(radiusDir, date.Format("2006-01-02")+"_color_normalized.txt")
	return m23file.WriteColorNormalizedFile(path, data, date)
}
