package job

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"0049 30 1234", "0049301234"},
		{"+49 (30) 555-0100", "49305550100"},
		{"  ", ""},
		{"abc", ""},
		{"030 555 0100", "0305550100"},
	}
	for _, c := range cases {
		if got := NormalizeNumber(c.in); got != c.want {
			t.Errorf("NormalizeNumber(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := []struct {
		in, fallback, want string
	}{
		{"Invoice 2024.pdf", "fax", "Invoice_2024.pdf"},
		{"  Angebot  Müller ", "fax", "Angebot_M_ller"},
		{"...---", "fax", "fax"},
		{"", "document", "document"},
		{"a/b\\c", "fax", "a_b_c"},
	}
	for _, c := range cases {
		if got := SanitizeBase(c.in, c.fallback); got != c.want {
			t.Errorf("SanitizeBase(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestArchiveBase(t *testing.T) {
	j := Job{"source": map[string]any{"filename_original": "Angebot Müller.pdf"}}
	if got := j.ArchiveBase(); got != "Angebot_M_ller" {
		t.Errorf("ArchiveBase = %q", got)
	}

	empty := Job{}
	if got := empty.ArchiveBase(); got != "fax" {
		t.Errorf("ArchiveBase on empty job = %q, want fax", got)
	}
	if got := empty.FailInBase(); got != "document" {
		t.Errorf("FailInBase on empty job = %q, want document", got)
	}
}

func TestSetIfAbsent(t *testing.T) {
	j := Job{}
	if !j.SetIfAbsent("claimed_at", "a") {
		t.Fatal("first set should write")
	}
	if j.SetIfAbsent("claimed_at", "b") {
		t.Fatal("second set should be a no-op")
	}
	if j["claimed_at"] != "a" {
		t.Errorf("claimed_at = %v, want a", j["claimed_at"])
	}

	// An empty string counts as unset.
	j["end_time"] = ""
	if !j.SetIfAbsent("end_time", "c") {
		t.Fatal("empty string should be overwritable")
	}

	// So does an explicit JSON null.
	j["started_at"] = nil
	if !j.SetIfAbsent("started_at", "d") {
		t.Fatal("null should be overwritable")
	}
}

func TestJIDVariants(t *testing.T) {
	cases := []struct {
		val  any
		want int
		ok   bool
	}{
		{float64(7), 7, true}, // JSON numbers decode to float64
		{9, 9, true},
		{"12", 12, true},
		{" 12 ", 12, true},
		{"x", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		j := Job{"hylafax": map[string]any{"jid": c.val}}
		got, ok := j.JID()
		if got != c.want || ok != c.ok {
			t.Errorf("JID(%v) = (%d, %v), want (%d, %v)", c.val, got, ok, c.want, c.ok)
		}
	}

	j := Job{}
	if _, ok := j.JID(); ok {
		t.Error("JID on empty job should not be set")
	}
}

func TestCancelFlags(t *testing.T) {
	j := Job{}
	if j.CancelRequested() || j.CancelHandled() {
		t.Fatal("empty job must not report cancel state")
	}

	j["cancel"] = map[string]any{"requested": true}
	if !j.CancelRequested() {
		t.Fatal("requested flag not seen")
	}
	if j.CancelHandled() {
		t.Fatal("handled before marking")
	}

	j.MarkCancelHandled(Stamp(time.Now()))
	if !j.CancelHandled() {
		t.Fatal("handled marker not set")
	}
	if !j.CancelRequested() {
		t.Fatal("marking handled must not clear the request")
	}
}

func TestInflightAndActive(t *testing.T) {
	cases := []struct {
		status   string
		inflight bool
		active   bool
	}{
		{"claimed", false, true},
		{"submitted", true, true},
		{"running", true, true},
		{"OK", false, false},
		{"FAILED", false, false},
		{"", false, false},
	}
	for _, c := range cases {
		j := Job{"status": c.status}
		if got := j.Inflight(); got != c.inflight {
			t.Errorf("Inflight(%q) = %v", c.status, got)
		}
		if got := j.Active(); got != c.active {
			t.Errorf("Active(%q) = %v", c.status, got)
		}
	}
}

func TestUnknownFieldsRoundTrip(t *testing.T) {
	in := []byte(`{"job_id":"abc","producer_extra":{"k":[1,2]},"status":"claimed"}`)
	var j Job
	if err := json.Unmarshal(in, &j); err != nil {
		t.Fatal(err)
	}
	j.SetStatus("submitted")
	out, err := json.Marshal(j)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	extra, ok := back["producer_extra"].(map[string]any)
	if !ok {
		t.Fatalf("producer_extra lost: %v", back)
	}
	if _, ok := extra["k"]; !ok {
		t.Error("nested unknown field lost")
	}
}

func TestStamp(t *testing.T) {
	ts := time.Date(2026, 8, 1, 12, 30, 45, 987654321, time.FixedZone("CEST", 2*3600))
	if got := Stamp(ts); got != "2026-08-01T10:30:45Z" {
		t.Errorf("Stamp = %q", got)
	}
}

func TestSetResultReasonIfAbsent(t *testing.T) {
	j := Job{}
	j.SetResultReasonIfAbsent(ReasonCancelled)
	j.SetResultReasonIfAbsent(ReasonUnknown)
	res := j["result"].(map[string]any)
	if res["reason"] != ReasonCancelled {
		t.Errorf("reason = %v, want cancelled", res["reason"])
	}
}
