package supervisor

import (
	"context"

	"github.com/thomaskien/kienzlefax/internal/hylafax"
	"github.com/thomaskien/kienzlefax/internal/job"
	"github.com/thomaskien/kienzlefax/internal/store"
)

// refreshLive projects faxstat -sal rows into the live section of
// processing jobs. The status tool is only polled while at least one
// backend job is active, and at most once per refresh interval; a
// failed poll keeps the previous cache and backs off.
func (s *Supervisor) refreshLive(ctx context.Context) {
	if !s.hasActiveBackendJobs() {
		return
	}

	if s.now().Sub(s.liveLast) >= s.cfg.FaxstatRefresh() {
		rows, err := s.backend.Status(ctx)
		s.liveLast = s.now()
		if err != nil {
			s.log.WithError(err).Warn("faxstat failed")
		} else {
			s.liveRows = rows
		}
	}
	if len(s.liveRows) == 0 {
		return
	}

	updated := s.stamp()
	s.forEachJob(s.layout.Processing(), func(dir string, j job.Job) {
		jid, ok := j.JID()
		if !ok {
			return
		}
		// A jid missing from the table keeps its last-known-good
		// projection; the table is not ground truth.
		row, ok := s.liveRows[jid]
		if !ok {
			return
		}
		projectLive(j, row, updated)
		if err := store.WriteJob(dir, j); err != nil {
			s.log.WithField("dir", dir).WithError(err).Warn("live update failed")
		}
	})
}

// hasActiveBackendJobs reports whether any processing job has a
// request id and is not yet finalized.
func (s *Supervisor) hasActiveBackendJobs() bool {
	active := false
	s.forEachJob(s.layout.Processing(), func(dir string, j job.Job) {
		if active {
			return
		}
		if _, ok := j.JID(); !ok {
			return
		}
		if j.Finalized() {
			return
		}
		active = true
	})
	return active
}

// projectLive writes one status row into the job's live section.
// Malformed ratio fields project as zero with the raw string kept.
func projectLive(j job.Job, row hylafax.StatusRow, updated string) {
	sent, total, _ := hylafax.ParseRatio(row.Pages)
	done, max, _ := hylafax.ParseRatio(row.Dials)

	live := j.Section("live")
	live["updated_at"] = updated
	live["progress"] = map[string]any{"sent": sent, "total": total, "raw": row.Pages}
	live["dials"] = map[string]any{"done": done, "max": max, "raw": row.Dials}
	live["tts"] = row.TTS
	live["state"] = row.State
	live["faxstat_status"] = row.Status
}
