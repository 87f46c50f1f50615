package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/petrijr/stepflow/pkg/api"
)

// Mirror is an api.Observer that copies run lifecycle and recorded values
// into a Store.
//
// Observer callbacks cannot fail the workflow, so store errors are logged
// and otherwise ignored.
type Mirror struct {
	api.NoopObserver

	store  Store
	logger *slog.Logger
	now    func() time.Time
}

var _ api.Observer = (*Mirror)(nil)

// NewMirror creates a Mirror writing to store. A nil logger uses
// slog.Default().
func NewMirror(store Store, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{store: store, logger: logger, now: time.Now}
}

func (m *Mirror) OnWorkflowStart(ctx context.Context, run api.RunInfo) {
	m.check(ctx, run, "start", m.store.StartRun(context.WithoutCancel(ctx), run, m.now()))
}

func (m *Mirror) OnWorkflowCompleted(ctx context.Context, run api.RunInfo) {
	m.check(ctx, run, "finish",
		m.store.FinishRun(context.WithoutCancel(ctx), run.ID, StatusCompleted, "", m.now()))
}

func (m *Mirror) OnWorkflowFailed(ctx context.Context, run api.RunInfo, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	m.check(ctx, run, "finish",
		m.store.FinishRun(context.WithoutCancel(ctx), run.ID, StatusFailed, msg, m.now()))
}

func (m *Mirror) OnValueRecorded(ctx context.Context, run api.RunInfo, key string, value any) {
	if run.ID == "" {
		return
	}
	m.check(ctx, run, "put_value",
		m.store.PutValue(context.WithoutCancel(ctx), run.ID, key, value), slog.String("key", key))
}

func (m *Mirror) check(ctx context.Context, run api.RunInfo, op string, err error, attrs ...slog.Attr) {
	if err == nil {
		return
	}
	args := []any{
		slog.String("op", op),
		slog.String("workflow", run.Workflow),
		slog.String("run_id", run.ID),
		slog.Any("error", err),
	}
	for _, a := range attrs {
		args = append(args, a)
	}
	m.logger.WarnContext(ctx, "monitor_write_failed", args...)
}
