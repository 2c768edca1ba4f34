package supervisor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/thomaskien/kienzlefax/internal/execx"
	"github.com/thomaskien/kienzlefax/internal/job"
	"github.com/thomaskien/kienzlefax/internal/store"
)

// sweepQueueCancels absorbs cancel intents for jobs still in the
// queue. No backend submission has happened, so the job goes straight
// to the failure archive.
func (s *Supervisor) sweepQueueCancels(ctx context.Context) {
	s.forEachJob(s.layout.Queue(), func(dir string, j job.Job) {
		if j.CancelRequested() && !j.CancelHandled() {
			s.cancelQueuedJob(ctx, dir, j)
		}
	})
}

func (s *Supervisor) cancelQueuedJob(ctx context.Context, dir string, j job.Job) {
	log := s.log.WithField("job", j.ID(filepath.Base(dir)))

	now := s.stamp()
	j.MarkCancelHandled(now)
	j.SetIfAbsent("claimed_at", now)
	j.SetIfAbsent("submitted_at", j.StringField("claimed_at"))
	j.SetIfAbsent("started_at", j.StringField("claimed_at"))
	j.SetIfAbsent("end_time", now)
	j.SetResultReasonIfAbsent(job.ReasonCancelled)

	if err := s.copyOriginalToFailIn(dir, j); err != nil {
		log.WithError(err).Warn("queue-cancel: copy original failed")
	}

	if err := s.writeFailedArtifacts(ctx, dir, j, nil); err != nil {
		// Keep the directory; rewrite the metadata and retry next tick.
		log.WithError(err).Warn("queue-cancel: write artifacts failed")
		// The cancel is not absorbed yet: drop the handled marker so
		// the next queue-cancel sweep picks the job up again.
		delete(j.Section("cancel"), "handled_at")
		if werr := store.WriteJob(dir, j); werr != nil {
			log.WithError(werr).Warn("queue-cancel: rewrite job.json failed")
		}
		return
	}

	if err := store.RemoveDir(dir); err != nil {
		log.WithError(err).Warn("queue-cancel: remove job directory failed")
		return
	}
	log.Info("queue-cancel: job archived and removed")
}

// sweepProcessingCancels handles cancel intents for claimed or
// in-flight jobs. The completion record is left alone — finalize
// depends on it and forces the failure path for cancelled jobs.
func (s *Supervisor) sweepProcessingCancels(ctx context.Context) {
	s.forEachJob(s.layout.Processing(), func(dir string, j job.Job) {
		if !j.CancelRequested() || j.CancelHandled() {
			return
		}
		log := s.log.WithField("job", j.ID(filepath.Base(dir)))

		if jid, ok := j.JID(); ok {
			log.WithField("jid", jid).Info("cancel requested, removing backend job")
			res, err := s.backend.Cancel(ctx, jid)
			switch {
			case errors.Is(err, execx.ErrTimeout):
				log.WithField("jid", jid).Warn("faxrm timeout")
			case err != nil:
				log.WithError(err).Warn("faxrm failed")
			default:
				log.WithFields(logrus.Fields{
					"rc":  res.RC,
					"out": strings.TrimSpace(res.Stdout),
					"err": strings.TrimSpace(res.Stderr),
				}).Info("faxrm done")
			}
			// Give the backend a moment before state is re-read.
			s.sleep(s.cfg.CancelPostWait())
		}

		j.MarkCancelHandled(s.stamp())
		if err := store.WriteJob(dir, j); err != nil {
			log.WithError(err).Warn("writing cancel.handled_at failed")
		}
	})
}
