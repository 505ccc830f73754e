package report

import (
	"context"
	"time"

	"github.com/MrWong99/edusync/internal/observe"
)

// Service produces a report for one conversation.
type Service struct {
	assembler *Assembler
	compiler  *Compiler
	sub       Submitter
	title     string
	metrics   *observe.Metrics
}

// ServiceOption configures a [Service].
type ServiceOption func(*Service)

// WithTitle sets the document title. Defaults to [DefaultTitle].
func WithTitle(t string) ServiceOption {
	return func(s *Service) {
		if t != "" {
			s.title = t
		}
	}
}

// WithServiceMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithServiceMetrics(m *observe.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService wires an assembler and compiler around sub.
func NewService(sub Submitter, a *Assembler, c *Compiler, opts ...ServiceOption) *Service {
	s := &Service{
		assembler: a,
		compiler:  c,
		sub:       sub,
		title:     DefaultTitle,
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Generate requests an analysis of the conversation and compiles it. The
// chart reflects the conversation as it was before the analysis request was
// appended.
func (s *Service) Generate(ctx context.Context) (*Document, error) {
	ctx, span := observe.StartSpan(ctx, "report.generate")
	defer span.End()
	log := observe.Logger(ctx)

	chart := ChartData(s.sub.History())

	analysis, err := s.assembler.Analyze(ctx)
	if err != nil {
		observe.FailSpan(span, err, "analysis failed")
		s.metrics.RecordReport(ctx, "analysis_failed")
		log.Warn("report analysis failed", "error", err)
		return nil, err
	}

	start := time.Now()
	doc, err := s.compiler.Compile(Input{Title: s.title, Analysis: analysis, Chart: chart})
	s.metrics.ReportDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.FailSpan(span, err, "compile failed")
		s.metrics.RecordReport(ctx, "compile_failed")
		log.Error("report compilation failed", "error", err)
		return nil, err
	}
	s.metrics.RecordReport(ctx, "ok")
	log.Info("report generated", "bytes", len(doc.Data), "chart_points", len(chart))
	return doc, nil
}
