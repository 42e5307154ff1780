package run

import (
	"fmt"
	"log"
	"sync"

	"github.com/strideworks/sprintgate/internal/pose"
	"github.com/strideworks/sprintgate/internal/timing"
)

// BatchConfig holds batch-mode driver settings.
type BatchConfig struct {
	// FPS is the source video frame rate; frame timestamps are derived as
	// frameIndex / FPS.
	FPS float64
	// Workers sizes the reference-point extraction pool. Values below 1
	// run extraction inline.
	Workers int
	// Adapter extracts the reference point from frames.
	Adapter pose.AdapterConfig
}

// DefaultBatchConfig returns batch settings for a given source frame rate.
func DefaultBatchConfig(fps float64) BatchConfig {
	return BatchConfig{
		FPS:     fps,
		Workers: 4,
		Adapter: pose.DefaultAdapterConfig(),
	}
}

// BatchAnalyzer drives a session over a recorded frame sequence. There is no
// real-time pacing: frames are processed as fast as extraction allows and
// the result is returned once.
type BatchAnalyzer struct {
	session *timing.Session
	cfg     BatchConfig
}

// NewBatchAnalyzer wraps an armed session for batch analysis.
func NewBatchAnalyzer(session *timing.Session, cfg BatchConfig) *BatchAnalyzer {
	return &BatchAnalyzer{session: session, cfg: cfg}
}

// Analyze runs the full pipeline over frames, which must be in
// non-decreasing frame-index order. Extraction fans out across the worker
// pool; outputs are re-sequenced into submission order before they reach the
// detector. Returns the result, or the session's abort error when the run
// never completed.
func (a *BatchAnalyzer) Analyze(frames []pose.Frame) (*timing.Result, error) {
	if a.cfg.FPS <= 0 {
		return nil, fmt.Errorf("batch analysis requires a positive fps, got %v", a.cfg.FPS)
	}
	if err := a.session.Start(); err != nil {
		return nil, err
	}
	log.Printf("batch session %s: analysing %d frames at %.2f fps", a.session.ID(), len(frames), a.cfg.FPS)

	points := a.extractAll(frames)
	for i, tp := range points {
		t := float64(frames[i].Index) / a.cfg.FPS
		if state := a.session.ProcessFrame(tp, t); state.Terminal() {
			break
		}
	}

	if err := a.session.EndOfFrames(); err != nil {
		return nil, err
	}
	if res := a.session.Result(); res != nil {
		return res, nil
	}
	// Aborted mid-analysis (e.g. timing invariant violation).
	return nil, fmt.Errorf("batch session aborted: %s", a.session.Status().AbortReason)
}

// extractAll runs reference-point extraction over the frames, using a worker
// pool when configured. The returned slice is in input order.
func (a *BatchAnalyzer) extractAll(frames []pose.Frame) []pose.TrackedPoint {
	if a.cfg.Workers <= 1 || len(frames) < 2 {
		out := make([]pose.TrackedPoint, len(frames))
		for i, f := range frames {
			out[i] = pose.ExtractReferencePoint(f, a.cfg.Adapter)
		}
		return out
	}

	type extracted struct {
		seq int64
		tp  pose.TrackedPoint
	}

	jobs := make(chan int, len(frames))
	results := make(chan extracted, len(frames))

	var wg sync.WaitGroup
	for w := 0; w < a.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- extracted{seq: int64(i), tp: pose.ExtractReferencePoint(frames[i], a.cfg.Adapter)}
			}
		}()
	}
	for i := range frames {
		jobs <- i
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	// Workers complete out of order; the resequencer restores submission
	// order before anything downstream sees the points.
	out := make([]pose.TrackedPoint, 0, len(frames))
	reseq := NewResequencer(func(tp pose.TrackedPoint) {
		out = append(out, tp)
	})
	for r := range results {
		reseq.Add(r.seq, r.tp)
	}
	return out
}
