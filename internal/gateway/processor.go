// Package gateway implements the Request Processor: the component that
// drives Plan Builder → Pipeline Engine → Trailer Writer for one request
// and owns that request's temp directory (spec.md §4.5).
package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/arlojanssen/refstream/internal/metrics"
	"github.com/arlojanssen/refstream/internal/planner"
	"github.com/arlojanssen/refstream/internal/procs"
	"github.com/arlojanssen/refstream/internal/query"
	"github.com/arlojanssen/refstream/internal/trailer"
)

// Processor drives one request from query.Query to a settled HTTP
// response. It owns the per-request temp directory created for
// multi-file merges and arms the grace timer spec.md §4.5 step 6
// describes.
type Processor struct {
	Tools   planner.ToolPaths
	TempDir string
	Grace   time.Duration
}

// SupportedFormats is a pure query used by the controller, per spec.md
// §4.5.
func (p *Processor) SupportedFormats() []query.Format { return query.SupportedFormats() }

// DefaultFormat is a pure query used by the controller, per spec.md §4.5.
func (p *Processor) DefaultFormat() query.Format { return query.DefaultFormat }

// TextualFormats is a pure query used by the controller, per spec.md
// §4.5.
func (p *Processor) TextualFormats() []query.Format { return query.TextualFormats() }

func (p *Processor) makeTempDir() (string, error) {
	return os.MkdirTemp(p.TempDir, "refstream-merge-*")
}

// Process validates q, builds a plan, spawns its stages, runs the
// pipeline with w (and r's context as the transport-close signal), and
// writes the truncation/checksum trailers. It never converts an
// in-flight failure into a non-200 status (spec.md §7): once Process
// starts writing the body, every outcome is reported through the
// trailer, not the status line.
func (p *Processor) Process(w http.ResponseWriter, r *http.Request, q query.Query) error {
	plan, err := planner.Build(q, p.Tools, p.makeTempDir)
	if err != nil {
		return err
	}

	if plan.TempDir != "" {
		defer func() {
			if rmErr := os.RemoveAll(plan.TempDir); rmErr != nil {
				log.Printf("cleanup warning: removing temp dir %s: %v", plan.TempDir, rmErr)
			}
		}()
	}

	handles := make([]*procs.Handle, len(plan.Stages))
	for i, stage := range plan.Stages {
		handles[i] = procs.New(stageTitle(i, len(plan.Stages), q), stage.Argv, stage.Dir)
	}

	tracked := newTrackedResponseWriter(w)
	if err := trailer.Declare(tracked); err != nil {
		return fmt.Errorf("gateway: declaring trailers: %w", err)
	}
	tracked.Header().Set("Content-Type", contentType(q.EffectiveFormat()))
	tracked.WriteHeader(http.StatusOK)

	stopMetrics := metrics.RequestStarted()
	defer stopMetrics()

	start := time.Now()
	pipeline := procs.New(handles, func() {}, func() {})
	pipeline.OnStageFailed(metrics.ObserveStageFailure)

	ctx := r.Context()
	graceDone := make(chan struct{})
	go p.armGraceTimer(ctx, handles, graceDone)

	counter := &byteCounter{w: tracked}
	settlement := pipeline.Run(ctx, counter)
	close(graceDone)

	metrics.ObservePipeline(time.Since(start), counter.n, settlement.Truncated)

	return trailer.SetDataTruncation(tracked, settlement.Truncated, settlement.Checksum)
}

// armGraceTimer implements spec.md §4.5 step 6: the grace period starts
// only once the transport closes, and force-kills whatever is still
// alive when it fires — a backstop for stages that ignore the EOF
// cascade the Pipeline Engine otherwise relies on.
func (p *Processor) armGraceTimer(ctx context.Context, handles []*procs.Handle, stop <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-stop:
		return
	}

	timer := time.NewTimer(p.Grace)
	defer timer.Stop()

	select {
	case <-timer.C:
		for _, h := range handles {
			if !h.Closed() {
				h.Kill()
			}
		}
	case <-stop:
	}
}

func stageTitle(index, total int, q query.Query) string {
	if len(q.Files) == 1 {
		if index == 0 {
			return "alignment-view"
		}
		return "varcall"
	}

	switch index {
	case 0:
		return "merge"
	case 1:
		return "markdup"
	case 2:
		return "alignment-view"
	default:
		return "varcall"
	}
}

func contentType(format query.Format) string {
	for _, textual := range query.TextualFormats() {
		if textual == format {
			return "text/plain; charset=utf-8"
		}
	}
	return "application/octet-stream"
}
