// Package report materialises the human-readable transmission report
// and merges it with the sent document. The report page is rendered
// in-process; page merging is delegated to qpdf.
package report

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/sirupsen/logrus"

	"github.com/thomaskien/kienzlefax/internal/execx"
	"github.com/thomaskien/kienzlefax/internal/hylafax"
	"github.com/thomaskien/kienzlefax/internal/job"
	"github.com/thomaskien/kienzlefax/internal/store"
)

// Builder renders report PDFs and drives the external PDF tools.
type Builder struct {
	QpdfBin       string
	HeaderScript  string
	HeaderTimeout time.Duration
	Version       string
	Log           *logrus.Logger
}

// HeaderVariant returns the path of the header-prefixed sibling of a
// document ("doc.pdf" -> "doc_hdr.pdf").
func HeaderVariant(docPath string) string {
	return strings.TrimSuffix(docPath, ".pdf") + "_hdr.pdf"
}

// AddHeader runs the optional header-prefix tool on the document and
// returns the path to send. Any failure falls back to the raw
// document; a fax without header beats no fax.
func (b *Builder) AddHeader(ctx context.Context, docPath string) string {
	if b.HeaderScript == "" {
		return docPath
	}
	if _, err := os.Stat(b.HeaderScript); err != nil {
		return docPath
	}
	out := HeaderVariant(docPath)
	res, err := execx.Run(ctx, []string{b.HeaderScript, docPath, out}, nil, b.HeaderTimeout)
	if err != nil || res.RC != 0 || !store.FileExists(out) {
		b.Log.WithFields(logrus.Fields{"rc": res.RC, "err": err}).
			Warn("header script failed, sending without header")
		return docPath
	}
	return out
}

// Merge prepends the report to the document:
// qpdf --empty --pages <report> <doc> -- <out>.
func (b *Builder) Merge(ctx context.Context, reportPDF, docPDF, outPDF string) error {
	argv := []string{b.QpdfBin, "--empty", "--pages", reportPDF, docPDF, "--", outPDF}
	res, err := execx.Run(ctx, argv, nil, 0)
	if err != nil {
		return fmt.Errorf("qpdf merge: %w", err)
	}
	if res.RC != 0 {
		return fmt.Errorf("qpdf merge failed rc=%d out=%q err=%q",
			res.RC, strings.TrimSpace(res.Stdout), strings.TrimSpace(res.Stderr))
	}
	return nil
}

// BuildReport renders the one-page status report for a finished job.
// rec may be nil when no completion record exists (queue-stage cancel).
func (b *Builder) BuildReport(j job.Job, rec *hylafax.DoneqRecord, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	status := strings.ToUpper(j.Status())
	label := status
	switch {
	case j.CancelRequested():
		label = "CANCELLED (abgebrochen)"
	case status == job.StatusOK:
		label = "OK (erfolgreich)"
	case status == job.StatusFailed:
		label = "FAILED (fehlgeschlagen)"
	case status == "":
		label = "UNKNOWN"
	}

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, tr("Fax-Sendebericht"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 9, tr("Status: "+label), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 11)
	line := func(s string) {
		pdf.CellFormat(0, 6, tr(s), "", 1, "L", false, 0, "")
	}
	line("Job-ID: " + j.ID(""))
	line(fmt.Sprintf("Empfänger: %s  |  Nummer: %s", j.RecipientName(), j.Number()))
	line(fmt.Sprintf("Quelle: %s  |  Datei: %s", j.SourceField("src"), j.SourceField("filename_original")))
	line(fmt.Sprintf("Optionen: ECM=%s  |  Auflösung=%s", j.OptionField("ecm"), j.OptionField("resolution")))
	pdf.Ln(2)

	if jid, ok := j.JID(); ok {
		line(fmt.Sprintf("HylaFAX JID: %d", jid))
	} else {
		line("HylaFAX JID: ")
	}

	if rec != nil {
		if rec.CommID != "" {
			line("CommID: " + rec.CommID)
		}
		if rec.CSI != "" {
			line("CSI: " + rec.CSI)
		}
		if rec.Signalrate != "" {
			line("Signalrate: " + rec.Signalrate)
		}
		if rec.NPages != nil && rec.TotPages != nil {
			line(fmt.Sprintf("Seiten: %d/%d", *rec.NPages, *rec.TotPages))
		}
	}

	if dur, ok := duration(j); ok {
		line(fmt.Sprintf("Dauer: %d s", dur))
	}

	pdf.SetY(-20)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 5,
		tr(fmt.Sprintf("Erzeugt: %s  |  kienzlefax-worker v%s", job.Stamp(time.Now()), b.Version)),
		"", 1, "L", false, 0, "")

	return pdf.OutputFileAndClose(outPath)
}

// duration derives the transmission duration in seconds from the
// lifecycle timestamps, when both ends are parseable.
func duration(j job.Job) (int, bool) {
	started := j.StringField("started_at")
	if started == "" {
		started = j.StringField("submitted_at")
	}
	if started == "" {
		started = j.StringField("claimed_at")
	}
	ended := j.StringField("end_time")
	if ended == "" {
		ended = j.StringField("finalized_at")
	}
	if started == "" || ended == "" {
		return 0, false
	}
	s, err := time.Parse(time.RFC3339, started)
	if err != nil {
		return 0, false
	}
	e, err := time.Parse(time.RFC3339, ended)
	if err != nil {
		return 0, false
	}
	return int(e.Sub(s).Seconds()), true
}
