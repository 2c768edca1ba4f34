// Package supervisor implements the job-directory lifecycle engine: a
// single cooperative loop that claims jobs from the queue, submits
// them to the fax backend, absorbs cancel intents, observes progress,
// and materialises terminal artefacts into the archives.
package supervisor

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thomaskien/kienzlefax/internal/config"
	"github.com/thomaskien/kienzlefax/internal/execx"
	"github.com/thomaskien/kienzlefax/internal/hylafax"
	"github.com/thomaskien/kienzlefax/internal/job"
	"github.com/thomaskien/kienzlefax/internal/store"
)

// logEntry is a contextualised log target.
type logEntry = *logrus.Entry

// Backend is the fax subsystem as seen by the scheduler.
type Backend interface {
	Submit(ctx context.Context, number, docPath string) (hylafax.SubmitResult, error)
	Cancel(ctx context.Context, jid int) (execx.Result, error)
	Status(ctx context.Context) (map[int]hylafax.StatusRow, error)
	DoneqPath(jid int) string
}

// Renderer builds the terminal artefacts for a finished job.
type Renderer interface {
	AddHeader(ctx context.Context, docPath string) string
	BuildReport(j job.Job, rec *hylafax.DoneqRecord, outPath string) error
	Merge(ctx context.Context, reportPDF, docPDF, outPDF string) error
}

// Supervisor owns the tick loop and all mutable state: the live-status
// cache and its refresh timestamp. The filesystem carries everything
// else.
type Supervisor struct {
	cfg     *config.Config
	layout  store.Layout
	backend Backend
	render  Renderer
	log     *logrus.Logger

	// Stubbed in tests.
	now   func() time.Time
	sleep func(time.Duration)

	liveRows map[int]hylafax.StatusRow
	liveLast time.Time

	wake chan struct{}
}

// New creates a supervisor over the given layout and collaborators.
func New(cfg *config.Config, layout store.Layout, backend Backend, render Renderer, log *logrus.Logger) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		layout:  layout,
		backend: backend,
		render:  render,
		log:     log,
		now:     time.Now,
		sleep:   time.Sleep,
		wake:    make(chan struct{}, 1),
	}
}

func (s *Supervisor) stamp() string { return job.Stamp(s.now()) }

// Run executes the tick loop until ctx is cancelled. The queue watcher
// only shortens claim latency; the polling cadence is the contract.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.layout.Ensure(); err != nil {
		return err
	}
	s.startQueueWatcher(ctx)
	s.log.WithField("base", s.layout.Base).Info("started")

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.PollInterval()):
		case <-s.wake:
		}
	}
}

// Tick runs one scheduling pass. The order is a contract: cancels are
// absorbed before finalization, finalization before new submissions,
// so a producer's cancel always wins over an imminent submit.
func (s *Supervisor) Tick(ctx context.Context) {
	s.sweepQueueCancels(ctx)
	s.sweepProcessingCancels(ctx)
	s.sweepFinalize(ctx)
	s.refreshLive(ctx)
	s.sweepSubmit(ctx)
}

// forEachJob reads every job directory under root and invokes fn.
// Unreadable metadata skips the job; missing job.json is silent (the
// directory may be mid-rename).
func (s *Supervisor) forEachJob(root string, fn func(dir string, j job.Job)) {
	dirs, err := store.ListJobDirs(root)
	if err != nil {
		s.log.WithError(err).Warn("queue scan failed")
		return
	}
	for _, dir := range dirs {
		j, err := store.ReadJob(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				s.log.WithField("dir", dir).WithError(err).Warn("skipping unreadable job")
			}
			continue
		}
		fn(dir, j)
	}
}
