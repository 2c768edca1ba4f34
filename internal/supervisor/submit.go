package supervisor

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/thomaskien/kienzlefax/internal/execx"
	"github.com/thomaskien/kienzlefax/internal/job"
	"github.com/thomaskien/kienzlefax/internal/store"
)

// sweepSubmit claims and submits queued jobs while capacity remains.
// Two jobs to the same normalised number are never in flight together.
func (s *Supervisor) sweepSubmit(ctx context.Context) {
	inflight := s.countInflight()
	if inflight >= s.cfg.MaxInflight {
		return
	}
	busy := s.busyNumbers()

	for inflight < s.cfg.MaxInflight {
		dir := s.claimNext(busy)
		if dir == "" {
			return
		}

		j, err := store.ReadJob(dir)
		if err != nil {
			s.log.WithField("dir", dir).WithError(err).Warn("claimed job unreadable")
		} else {
			j.SetIfAbsent("claimed_at", s.stamp())
			if j.CancelRequested() {
				// Claim race: the cancel arrived before the claim.
				// Hand the directory back; the queue-cancel sweep
				// wins next tick. No inflight slot was consumed.
				target := filepath.Join(s.layout.Queue(), filepath.Base(dir))
				if mvErr := store.MoveDir(dir, target); mvErr != nil {
					s.log.WithField("dir", dir).WithError(mvErr).Warn("returning cancelled claim failed")
				} else {
					s.log.WithField("job", j.ID(filepath.Base(dir))).Info("claimed-but-cancelled, returned to queue")
				}
				return
			}
			if j.Status() == "" {
				j.SetStatus(job.StatusClaimed)
			}
			if wErr := store.WriteJob(dir, j); wErr != nil {
				s.log.WithField("dir", dir).WithError(wErr).Warn("writing claim failed")
			}
			if num := job.NormalizeNumber(j.Number()); num != "" {
				busy[num] = true
			}
		}

		s.submitJob(ctx, dir)
		inflight = s.countInflight()
	}
}

// claimNext atomically renames the first eligible queue directory into
// processing. The rename is the claim point.
func (s *Supervisor) claimNext(busy map[string]bool) string {
	dirs, err := store.ListJobDirs(s.layout.Queue())
	if err != nil {
		s.log.WithError(err).Warn("queue scan failed")
		return ""
	}
	for _, dir := range dirs {
		j, err := store.ReadJob(dir)
		if err != nil {
			continue
		}
		num := job.NormalizeNumber(j.Number())
		if num != "" && busy[num] {
			continue
		}
		target := filepath.Join(s.layout.Processing(), filepath.Base(dir))
		if err := store.MoveDir(dir, target); err != nil {
			s.log.WithField("dir", dir).WithError(err).Warn("claim rename failed")
			continue
		}
		s.log.WithFields(logrus.Fields{"job": filepath.Base(dir), "number": num}).Info("claimed")
		return target
	}
	return ""
}

// submitJob invokes sendfax for a freshly claimed job and records the
// attempt. The request id, not the exit code, determines success.
func (s *Supervisor) submitJob(ctx context.Context, dir string) {
	log := s.log.WithField("job", filepath.Base(dir))

	j, err := store.ReadJob(dir)
	if err != nil {
		log.WithError(err).Warn("submit: job.json missing or unreadable")
		return
	}
	doc := filepath.Join(dir, docFile)
	if !store.FileExists(doc) {
		log.Warn("submit: doc.pdf missing")
		return
	}
	if j.CancelRequested() {
		return
	}

	sendDoc := s.render.AddHeader(ctx, doc)

	num := job.NormalizeNumber(j.Number())
	if num == "" {
		log.Warn("submit: invalid recipient number")
		return
	}

	now := s.stamp()
	j.SetIfAbsent("claimed_at", now)
	j.SetIfAbsent("submitted_at", now)
	j.SetIfAbsent("started_at", j.StringField("submitted_at"))
	j.SetStatus(job.StatusSubmitted)
	if err := store.WriteJob(dir, j); err != nil {
		log.WithError(err).Warn("submit: writing job.json failed")
		return
	}

	res, err := s.backend.Submit(ctx, num, sendDoc)
	if err != nil {
		// Re-read so concurrent cancel intents are not clobbered.
		j = s.rereadOr(dir, j)
		j.SetStatus(job.StatusFailed)
		if errors.Is(err, execx.ErrTimeout) {
			j.SetSubmitForensics(-1, "", job.ReasonSendTimeout)
			j.SetResultReasonIfAbsent(job.ReasonSendTimeout)
			log.Warn("submit: sendfax timeout")
		} else {
			j.SetSubmitForensics(-1, "", err.Error())
			log.WithError(err).Warn("submit: sendfax failed to run")
		}
		s.rewriteJob(dir, j, log)
		return
	}

	j = s.rereadOr(dir, j)
	j.SetSubmitForensics(res.RC, res.Stdout, res.Stderr)
	if res.HasJID {
		j.SetJID(res.JID)
		log.WithField("jid", res.JID).Info("submitted")
	} else {
		j.SetStatus(job.StatusFailed)
		log.WithField("rc", res.RC).Warn("submit: no request id parsed")
	}
	s.rewriteJob(dir, j, log)
}

func (s *Supervisor) rereadOr(dir string, fallback job.Job) job.Job {
	j, err := store.ReadJob(dir)
	if err != nil {
		return fallback
	}
	return j
}

// countInflight counts processing jobs whose status occupies a
// backend slot (submitted or running; claimed does not count).
func (s *Supervisor) countInflight() int {
	n := 0
	s.forEachJob(s.layout.Processing(), func(dir string, j job.Job) {
		if j.Inflight() {
			n++
		}
	})
	return n
}

// busyNumbers collects the normalised numbers of all non-terminal
// processing jobs.
func (s *Supervisor) busyNumbers() map[string]bool {
	busy := map[string]bool{}
	s.forEachJob(s.layout.Processing(), func(dir string, j job.Job) {
		if !j.Active() {
			return
		}
		if num := job.NormalizeNumber(j.Number()); num != "" {
			busy[num] = true
		}
	})
	return busy
}
