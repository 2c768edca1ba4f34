package supervisor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thomaskien/kienzlefax/internal/hylafax"
	"github.com/thomaskien/kienzlefax/internal/job"
	"github.com/thomaskien/kienzlefax/internal/report"
	"github.com/thomaskien/kienzlefax/internal/store"
)

// docFile is the to-send document inside every job directory.
const docFile = "doc.pdf"

// sweepFinalize archives every processing job whose completion record
// has appeared. Jobs without a request id cannot finalize; they are
// counted and left for the operator.
func (s *Supervisor) sweepFinalize(ctx context.Context) {
	stuck := 0
	s.forEachJob(s.layout.Processing(), func(dir string, j job.Job) {
		if _, ok := j.JID(); !ok {
			if s.overdue(j) {
				stuck++
			}
			return
		}
		s.finalizeJob(ctx, dir, j)
	})
	if stuck > 0 {
		s.log.WithField("count", stuck).Warn("jobs stuck in processing without request id")
	}
}

// finalizeJob materialises the terminal state of one job. Returns true
// once the job's artefacts are in the archive; a failure to remove the
// processing directory afterwards is only logged.
func (s *Supervisor) finalizeJob(ctx context.Context, dir string, j job.Job) bool {
	doc := filepath.Join(dir, docFile)
	if !store.FileExists(doc) {
		return false
	}
	jid, _ := j.JID()
	log := s.log.WithField("job", j.ID(filepath.Base(dir))).WithField("jid", jid)

	rec, err := hylafax.ReadDoneq(s.backend.DoneqPath(jid))
	if err != nil {
		if os.IsNotExist(err) {
			// Not ready. Warn when the wait exceeds the finalize
			// timeout, but never force-archive: the backend may just
			// be slow, and the record is the authoritative outcome.
			if s.overdue(j) {
				log.Warn("timeout waiting for completion record")
			}
		} else {
			log.WithError(err).Warn("completion record unreadable")
		}
		return false
	}

	res := j.Section("result")
	res["statuscode"] = intOrNil(rec.Statuscode)
	res["npages"] = intOrNil(rec.NPages)
	res["totpages"] = intOrNil(rec.TotPages)
	res["signalrate"] = rec.Signalrate
	res["csi"] = rec.CSI
	res["commid"] = rec.CommID
	if v, ok := res["tx_time"].(string); !ok || v == "" {
		res["tx_time"] = ""
	}

	now := s.stamp()
	j.SetIfAbsent("finalizing_at", now)
	j.SetIfAbsent("finalized_at", now)
	j.SetIfAbsent("end_time", j.StringField("finalized_at"))

	if j.CancelRequested() {
		j.SetStatus(job.StatusFailed)
		j.SetResultReasonIfAbsent(job.ReasonCancelled)
		return s.archiveFailure(ctx, dir, j, rec, log)
	}

	if rec.Success() {
		j.SetStatus(job.StatusOK)
		j.Section("result")["reason"] = job.ReasonOK
		return s.archiveSuccess(ctx, dir, j, rec, log)
	}

	j.SetStatus(job.StatusFailed)
	j.SetResultReasonIfAbsent(job.ReasonUnknown)
	return s.archiveFailure(ctx, dir, j, rec, log)
}

// archiveSuccess builds the merged report and moves it into the
// success archive. Archival is write-once: the processing directory is
// removed only after the artefacts are in place.
func (s *Supervisor) archiveSuccess(ctx context.Context, dir string, j job.Job, rec *hylafax.DoneqRecord, log logEntry) bool {
	base := j.ArchiveBase()
	id := j.ID(filepath.Base(dir))

	merged, err := s.buildMerged(ctx, dir, j, rec)
	if err != nil {
		log.WithError(err).Warn("finalize: building artifacts failed")
		s.rewriteJob(dir, j, log)
		return false
	}

	outPDF := filepath.Join(s.layout.ArchiveOK(), fmt.Sprintf("%s__%s__OK.pdf", base, id))
	outJSON := filepath.Join(s.layout.ArchiveOK(), fmt.Sprintf("%s__%s.json", base, id))
	if err := store.MoveFile(merged, outPDF); err != nil {
		log.WithError(err).Warn("finalize: move merged pdf failed")
		s.rewriteJob(dir, j, log)
		return false
	}
	if err := store.WriteJSON(outJSON, j); err != nil {
		log.WithError(err).Warn("finalize: write archive json failed")
		return false
	}
	if err := store.RemoveDir(dir); err != nil {
		log.WithError(err).Warn("finalize: remove job directory failed")
	}
	log.WithField("pdf", filepath.Base(outPDF)).Info("finalize OK")
	return true
}

// archiveFailure copies the original for re-ingestion and writes the
// failure artefacts. Used by finalize for failed and cancelled jobs.
func (s *Supervisor) archiveFailure(ctx context.Context, dir string, j job.Job, rec *hylafax.DoneqRecord, log logEntry) bool {
	if err := s.copyOriginalToFailIn(dir, j); err != nil {
		log.WithError(err).Warn("finalize: copy original failed")
	}
	if err := s.writeFailedArtifacts(ctx, dir, j, rec); err != nil {
		log.WithError(err).Warn("finalize: write failure artifacts failed")
		s.rewriteJob(dir, j, log)
		return false
	}
	if err := store.RemoveDir(dir); err != nil {
		log.WithError(err).Warn("finalize: remove job directory failed")
	}
	log.Info("finalize FAILED, artifacts archived")
	return true
}

// writeFailedArtifacts materialises the failure report and metadata
// into the failure archive. Also used by the queue-stage cancel, where
// rec is nil.
func (s *Supervisor) writeFailedArtifacts(ctx context.Context, dir string, j job.Job, rec *hylafax.DoneqRecord) error {
	now := s.stamp()
	j.SetIfAbsent("finalizing_at", now)
	j.SetIfAbsent("finalized_at", now)
	j.SetIfAbsent("end_time", j.StringField("finalized_at"))
	j.SetStatus(job.StatusFailed)
	if j.CancelRequested() {
		j.SetResultReasonIfAbsent(job.ReasonCancelled)
	} else {
		j.SetResultReasonIfAbsent(job.ReasonUnknown)
	}

	base := j.ArchiveBase()
	id := j.ID(filepath.Base(dir))

	merged, err := s.buildMerged(ctx, dir, j, rec)
	if err != nil {
		return err
	}

	outPDF := filepath.Join(s.layout.FailOut(), fmt.Sprintf("%s__%s__FAILED.pdf", base, id))
	outJSON := filepath.Join(s.layout.FailOut(), fmt.Sprintf("%s__%s.json", base, id))
	if err := store.MoveFile(merged, outPDF); err != nil {
		return fmt.Errorf("move merged pdf: %w", err)
	}
	if err := store.WriteJSON(outJSON, j); err != nil {
		return fmt.Errorf("write archive json: %w", err)
	}
	return nil
}

// buildMerged renders the report page and merges it with the document
// that was actually sent (header-prefixed variant when present).
func (s *Supervisor) buildMerged(ctx context.Context, dir string, j job.Job, rec *hylafax.DoneqRecord) (string, error) {
	reportPDF := filepath.Join(dir, "report.pdf")
	mergedPDF := filepath.Join(dir, "merged.pdf")
	doc := filepath.Join(dir, docFile)
	mergeDoc := doc
	if hdr := report.HeaderVariant(doc); store.FileExists(hdr) {
		mergeDoc = hdr
	}
	if err := s.render.BuildReport(j, rec, reportPDF); err != nil {
		return "", fmt.Errorf("build report: %w", err)
	}
	if err := s.render.Merge(ctx, reportPDF, mergeDoc, mergedPDF); err != nil {
		return "", err
	}
	return mergedPDF, nil
}

// copyOriginalToFailIn places the untouched original into the
// re-ingest directory, disambiguating by job id on collision.
func (s *Supervisor) copyOriginalToFailIn(dir string, j job.Job) error {
	orig := filepath.Join(dir, "source.pdf")
	if !store.FileExists(orig) {
		orig = filepath.Join(dir, docFile)
		if !store.FileExists(orig) {
			return nil
		}
	}
	base := j.FailInBase()
	dest := filepath.Join(s.layout.FailIn(), base+".pdf")
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(s.layout.FailIn(), fmt.Sprintf("%s__%s.pdf", base, j.ID(filepath.Base(dir))))
	}
	if err := store.CopyFile(orig, dest); err != nil {
		return err
	}
	s.log.WithField("dest", filepath.Base(dest)).Info("original copied for re-ingestion")
	return nil
}

// overdue reports whether the job's claim age exceeds the finalize
// timeout.
func (s *Supervisor) overdue(j job.Job) bool {
	claimed := j.StringField("claimed_at")
	if claimed == "" {
		claimed = j.StringField("submitted_at")
	}
	if claimed == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, claimed)
	if err != nil {
		return false
	}
	return s.now().Sub(t) > s.cfg.FinalizeTimeout()
}

func (s *Supervisor) rewriteJob(dir string, j job.Job, log logEntry) {
	if err := store.WriteJob(dir, j); err != nil {
		log.WithError(err).Warn("rewrite job.json failed")
	}
}

func intOrNil(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
