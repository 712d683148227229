package scheduler

import (
	"context"
	"time"

	"Guardline/pkg/logger"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type Job interface{ Run(ctx context.Context) error }

type FuncJob func(ctx context.Context) error

func (f FuncJob) Run(ctx context.Context) error { return f(ctx) }

// Cron runs named jobs on cron expressions. Overlapping runs of the same
// job are skipped and every run gets a context cancelled on Stop.
type Cron struct {
	c       *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

func NewCron(loc *time.Location, timeout time.Duration) *Cron {
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	return &Cron{c: c, ctx: ctx, cancel: cancel, timeout: timeout}
}

func (cr *Cron) Start() { cr.c.Start() }

// Stop cancels running jobs and waits for them to return.
func (cr *Cron) Stop() {
	cr.cancel()
	<-cr.c.Stop().Done()
}

func (cr *Cron) Add(name, expr string, job Job) (cron.EntryID, error) {
	return cr.c.AddFunc(expr, func() { cr.run(name, job) })
}

func (cr *Cron) run(name string, job Job) {
	ctx := cr.ctx
	if cr.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cr.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		logger.Error("cron job failed", zap.String("job", name), zap.Error(err))
		return
	}
	logger.Debug("cron job done", zap.String("job", name), zap.Duration("took", time.Since(start)))
}

func (cr *Cron) Entries() []cron.Entry { return cr.c.Entries() }
