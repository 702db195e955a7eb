package execute

import (
	"errors"
	"fmt"

	"github.com/chazu/threadforge/pkg/feature"
	"github.com/chazu/threadforge/pkg/kernel"
	"github.com/chazu/threadforge/pkg/thread"
	"go.uber.org/zap"
)

// SampleReport is the outcome of one batch sample. Err holds either the
// planning error recorded on the sample or the execution error.
type SampleReport struct {
	Index   int
	Spec    thread.Spec
	Offsets thread.Offsets
	Err     error
}

// BatchReport collects the outcome of every part of a batch.
type BatchReport struct {
	Plate   error
	Samples []SampleReport
}

// Failed returns the samples that did not build.
func (r *BatchReport) Failed() []SampleReport {
	var out []SampleReport
	for _, s := range r.Samples {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Err joins every failure in the report, or returns nil when all parts built.
func (r *BatchReport) Err() error {
	var errs []error
	if r.Plate != nil {
		errs = append(errs, fmt.Errorf("plate: %w", r.Plate))
	}
	for _, s := range r.Failed() {
		errs = append(errs, s.Err)
	}
	return errors.Join(errs...)
}

// RunBatch executes the plate and then each sample of b against backend.
// A failing part is recorded in the report and the remaining parts still
// run.
func (e *Executor) RunBatch(b *feature.Batch, backend kernel.Backend) *BatchReport {
	report := &BatchReport{}

	if _, err := e.Run(b.Plate, backend); err != nil {
		report.Plate = err
	}

	for _, s := range b.Samples {
		sr := SampleReport{Index: s.Index, Spec: s.Spec, Offsets: s.Offsets, Err: s.Err}
		if s.Err == nil {
			if _, err := e.Run(s.Plan, backend); err != nil {
				sr.Err = fmt.Errorf("sample %d: %w", s.Index, err)
			}
		}
		if sr.Err != nil {
			e.log.Warn("calibration sample failed", zap.Int("index", s.Index), zap.Error(sr.Err))
		}
		report.Samples = append(report.Samples, sr)
	}

	e.log.Info("batch executed",
		zap.Int("samples", len(report.Samples)),
		zap.Int("failed", len(report.Failed())),
		zap.Bool("plate", report.Plate == nil))
	return report
}
