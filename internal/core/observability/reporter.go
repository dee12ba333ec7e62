package observability

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// ErrorReporter receives resolution failures that were answered with a closed decision.
type ErrorReporter interface {
	ReportResolutionError(ctx context.Context, resolver, operation string, user uuid.UUID, err error)
}

// LogReporter logs the failure and counts it.
type LogReporter struct {
	logger  *slog.Logger
	metrics *Metrics
}

func NewLogReporter(logger *slog.Logger, metrics *Metrics) *LogReporter {
	return &LogReporter{logger: logger, metrics: metrics}
}

func (r *LogReporter) ReportResolutionError(ctx context.Context, resolver, operation string, user uuid.UUID, err error) {
	r.metrics.ResolutionError(resolver, operation)
	if r.logger != nil {
		r.logger.ErrorContext(ctx, "access resolution failed, denying",
			"resolver", resolver,
			"operation", operation,
			"user_id", user,
			"error", err)
	}
}
