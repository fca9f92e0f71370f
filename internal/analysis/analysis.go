// Package analysis runs the pose refinement pipeline: detection over a frame
// source, a minimum detection gate, temporal interpolation and smoothing,
// skeleton graph building and scoring.
package analysis

import (
	"context"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/flowstate/internal/capture"
	"github.com/ayusman/flowstate/internal/detector"
	"github.com/ayusman/flowstate/internal/motion"
	"github.com/ayusman/flowstate/internal/pose"
	"github.com/ayusman/flowstate/internal/score"
	"github.com/ayusman/flowstate/internal/skeleton"
)

// Pipeline defaults.
const (
	DefaultMinDetectedFrames = 30
	DefaultFrameRate         = 30.0
	DefaultWorkers           = 4
)

// Pipeline stages reported through ProgressFunc.
const (
	StageDetect      = "detect"
	StageInterpolate = "interpolate"
	StageSmooth      = "smooth"
	StageGraph       = "graph"
	StageScore       = "score"
	StageDone        = "done"
)

// Event describes pipeline progress.
type Event struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Total int    `json:"total"`
}

// ProgressFunc receives progress events. It may be called from several
// goroutines during detection.
type ProgressFunc func(Event)

// Config holds the parameters of every pipeline stage.
type Config struct {
	MinDetectedFrames   int
	UpscaleFactor       int
	Smoothing           motion.SmoothConfig
	ConfidenceThreshold float64
	FrameRate           float64
	Workers             int
	Debug               bool
}

// DefaultConfig returns a Config with the default pipeline parameters.
func DefaultConfig() Config {
	return Config{
		MinDetectedFrames:   DefaultMinDetectedFrames,
		UpscaleFactor:       motion.DefaultUpscaleFactor,
		Smoothing:           motion.DefaultSmoothConfig(),
		ConfidenceThreshold: pose.DefaultVisibility,
		FrameRate:           DefaultFrameRate,
		Workers:             DefaultWorkers,
	}
}

// Analyzer runs the pipeline with a fixed configuration and detector.
type Analyzer struct {
	config   Config
	detector detector.Detector
	progress ProgressFunc
}

// New creates an Analyzer. Zero stage parameters fall back to the defaults;
// MinDetectedFrames is used as given.
func New(config Config, det detector.Detector) *Analyzer {
	def := DefaultConfig()
	if config.UpscaleFactor <= 0 {
		config.UpscaleFactor = def.UpscaleFactor
	}
	if config.Smoothing.Window <= 0 {
		config.Smoothing.Window = def.Smoothing.Window
	}
	if config.Smoothing.Policy == "" {
		config.Smoothing.Policy = def.Smoothing.Policy
	}
	if config.FrameRate <= 0 {
		config.FrameRate = def.FrameRate
	}
	if config.Workers <= 0 {
		config.Workers = def.Workers
	}
	if config.ConfidenceThreshold <= 0 {
		config.ConfidenceThreshold = def.ConfidenceThreshold
	}

	return &Analyzer{
		config:   config,
		detector: det,
	}
}

// Config returns the analyzer configuration.
func (a *Analyzer) Config() Config {
	return a.config
}

// OnProgress registers fn to receive progress events.
func (a *Analyzer) OnProgress(fn ProgressFunc) {
	a.progress = fn
}

func (a *Analyzer) emit(stage string, done, total int) {
	if a.progress != nil {
		a.progress(Event{Stage: stage, Done: done, Total: total})
	}
}

// Analyze runs the full pipeline over src.
//
// It fails with an *InsufficientDetectionError when fewer than
// MinDetectedFrames frames have a detected body, and with ctx.Err() when
// ctx is cancelled during detection. Every other irregularity degrades the
// result instead of failing.
func (a *Analyzer) Analyze(ctx context.Context, src capture.Source) (*Result, error) {
	total := src.Len()

	seq, detected, err := a.detect(ctx, src)
	if err != nil {
		return nil, err
	}

	log.Printf("Detected pose in %d/%d frames", detected, total)

	if detected < a.config.MinDetectedFrames {
		return nil, &InsufficientDetectionError{
			Detected: detected,
			Total:    total,
			Required: a.config.MinDetectedFrames,
		}
	}

	return a.refine(seq, detected, total), nil
}

// detect runs the detector over every frame of src in parallel and returns
// the readable frames in index order along with the detected count.
func (a *Analyzer) detect(ctx context.Context, src capture.Source) (pose.Sequence, int, error) {
	total := src.Len()
	frames := make([]pose.KeypointFrame, total)
	readable := make([]bool, total)

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Workers)

	for i := 0; i < total; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			frame, ok := a.detectOne(src, i)
			frames[i] = frame
			readable[i] = ok

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			a.emit(StageDetect, n, total)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	seq := make(pose.Sequence, 0, total)
	detected := 0
	for i, f := range frames {
		if !readable[i] {
			continue
		}
		if f.HasBody() {
			detected++
		}
		seq = append(seq, f)
	}
	seq.SortByFrameIndex()

	return seq, detected, nil
}

// detectOne reads and detects frame i. Unreadable frames report false;
// detector failures yield an empty frame.
func (a *Analyzer) detectOne(src capture.Source, i int) (pose.KeypointFrame, bool) {
	mat, err := src.Read(i)
	if err != nil {
		log.Printf("Skipping frame %s: %v", src.Name(i), err)
		return pose.KeypointFrame{}, false
	}
	if mat != nil {
		defer mat.Close()
	}

	frame, err := a.detector.Detect(mat)
	if err != nil {
		log.Printf("Error detecting pose in %s: %v", src.Name(i), err)
		frame = pose.KeypointFrame{}
	}

	frame.FrameIndex = i
	frame.Timestamp = float64(i) / a.config.FrameRate

	if a.config.Debug {
		log.Printf("Frame %s: %d body keypoints", src.Name(i), len(frame.Body))
	}

	return frame, true
}

// refine runs the pure stages over a detected sequence and assembles the result.
func (a *Analyzer) refine(seq pose.Sequence, detected, total int) *Result {
	a.emit(StageInterpolate, 0, 1)
	interpolated := motion.Interpolate(seq, a.config.UpscaleFactor)

	a.emit(StageSmooth, 0, 1)
	smoothed := motion.Smooth(interpolated, a.config.Smoothing)

	a.emit(StageGraph, 0, 1)
	graphs := skeleton.BuildSequence(smoothed, a.config.ConfidenceThreshold)

	a.emit(StageScore, 0, 1)
	scoreCfg := score.Config{Threshold: a.config.ConfidenceThreshold}
	scores := score.Compute(smoothed, scoreCfg)

	var rate float64
	if total > 0 {
		rate = float64(detected) / float64(total)
	}

	result := &Result{
		PoseFrames: smoothed.WithEmptyLists(),
		StickFigureData: StickFigureData{
			Frames:   graphs,
			Topology: skeleton.DescribeTopology(),
		},
		OverallScores:          scores,
		FrameScores:            score.PerFrame(smoothed, scoreCfg),
		DetectionRate:          rate,
		FrameCount:             len(seq),
		InterpolatedFrameCount: len(smoothed),
		DetectedFramesCount:    detected,
	}

	a.emit(StageDone, 1, 1)
	log.Printf("Analysis complete: %d frames refined to %d, flow %.1f", len(seq), len(smoothed), scores.Flow)

	return result
}
