package pipeline

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Run carries one request through the pipeline stages. Warnings are
// non-fatal notes about result quality; Unavailable lists metrics that could
// not be produced while the rest of the result still was.
type Run struct {
	ID          uuid.UUID
	Operation   string
	Started     time.Time
	Warnings    []string
	Unavailable []string

	logger *zap.SugaredLogger
}

func newRun(logger *zap.SugaredLogger, operation string) *Run {
	id := uuid.New()
	return &Run{
		ID:        id,
		Operation: operation,
		Started:   time.Now(),
		logger:    logger.With("run_id", id.String(), "operation", operation),
	}
}

func (r *Run) warn(msg string) {
	r.logger.Warn(msg)
	r.Warnings = append(r.Warnings, msg)
}

func (r *Run) unavailable(err error) {
	r.logger.Warnw("metric unavailable", "error", err)
	r.Unavailable = append(r.Unavailable, err.Error())
}

func (r *Run) done() {
	r.logger.Infow("run complete",
		"elapsed", time.Since(r.Started).String(),
		"warnings", len(r.Warnings),
		"unavailable", len(r.Unavailable))
}

// Meta is the part of every report that describes the run itself.
type Meta struct {
	RunID       string   `json:"run_id"`
	Warnings    []string `json:"warnings,omitempty"`
	Unavailable []string `json:"unavailable,omitempty"`
}

func (r *Run) meta() Meta {
	return Meta{RunID: r.ID.String(), Warnings: r.Warnings, Unavailable: r.Unavailable}
}
