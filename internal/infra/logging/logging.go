package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"coachhire-ai/internal/config"
)

// New builds the process logger. Dev mode and format "console" write human
// readable lines; otherwise one JSON object per line. Sampling keeps the
// first 100 events of each second and one in ten after that.
func New(cfg config.LogConfig, dev bool) *zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if dev || strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(out).With().Timestamp().Logger()
	if cfg.Sampling && !dev {
		l = l.Sample(&zerolog.BurstSampler{
			Burst:       100,
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: 10},
		})
	}
	return &l
}

// correlation holds the ids that tie log lines to one request or job.
type correlation struct {
	traceID    string
	jobID      string
	flow       string
	pipelineID string
	enquiryID  string
}

type correlationKey struct{}

func correlationFrom(ctx context.Context) correlation {
	c, _ := ctx.Value(correlationKey{}).(correlation)
	return c
}

func withCorrelation(ctx context.Context, set func(*correlation)) context.Context {
	c := correlationFrom(ctx)
	set(&c)
	return context.WithValue(ctx, correlationKey{}, c)
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.traceID = id })
}

func WithJobID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.jobID = id })
}

func WithFlow(ctx context.Context, flow string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.flow = flow })
}

func WithPipelineID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.pipelineID = id })
}

func WithEnquiryID(ctx context.Context, id string) context.Context {
	return withCorrelation(ctx, func(c *correlation) { c.enquiryID = id })
}

// With returns base enriched with the correlation ids set on ctx. Empty ids
// are left out.
func With(ctx context.Context, base *zerolog.Logger) *zerolog.Logger {
	c := correlationFrom(ctx)
	lc := base.With()
	for _, f := range [...]struct{ key, val string }{
		{"trace_id", c.traceID},
		{"job_id", c.jobID},
		{"flow", c.flow},
		{"pipeline_id", c.pipelineID},
		{"enquiry_id", c.enquiryID},
	} {
		if f.val != "" {
			lc = lc.Str(f.key, f.val)
		}
	}
	l := lc.Logger()
	return &l
}

// MaskAddress keeps an email address recognisable in logs without storing
// it: the first letter of the local part and the domain survive.
func MaskAddress(addr string) string {
	local, domain, ok := strings.Cut(addr, "@")
	if !ok || local == "" {
		if len(addr) <= 4 {
			return "***"
		}
		return addr[:2] + "***"
	}
	return local[:1] + "***@" + domain
}
