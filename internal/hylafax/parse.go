package hylafax

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

var requestIDRe = regexp.MustCompile(`request id is\s+(\d+)`)

// ParseRequestID extracts the request id from sendfax output. stdout
// is searched first, then stderr (sendfax versions disagree on which
// stream carries the line).
func ParseRequestID(stdout, stderr string) (int, bool) {
	for _, s := range []string{stdout, stderr} {
		m := requestIDRe.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		return n, true
	}
	return 0, false
}

// DoneqRecord is the parsed completion record (doneq/q<JID>). Integer
// fields are nil when the value is absent or unparseable — never zero.
type DoneqRecord struct {
	Statuscode *int
	NPages     *int
	TotPages   *int
	TTS        *int
	Returned   *int
	Signalrate string
	CSI        string
	CommID     string
	Raw        map[string]string
}

// Success reports whether the record signals a successful
// transmission. statuscode 0 is the sole positive signal.
func (r *DoneqRecord) Success() bool {
	return r.Statuscode != nil && *r.Statuscode == 0
}

// ParseDoneq reads a line-oriented "key: value" completion record.
// Lines without a colon are skipped; unknown keys are preserved in Raw.
func ParseDoneq(r io.Reader) (*DoneqRecord, error) {
	raw := map[string]string{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		raw[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	geti := func(key string) *int {
		v, ok := raw[key]
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil
		}
		return &n
	}

	return &DoneqRecord{
		Statuscode: geti("statuscode"),
		NPages:     geti("npages"),
		TotPages:   geti("totpages"),
		TTS:        geti("tts"),
		Returned:   geti("returned"),
		Signalrate: raw["signalrate"],
		CSI:        raw["csi"],
		CommID:     raw["commid"],
		Raw:        raw,
	}, nil
}

// StatusRow is one row of the faxstat -sal table.
type StatusRow struct {
	JID    int
	Pri    string
	State  string
	Owner  string
	Number string
	Pages  string // "sent:total"
	Dials  string // "done:max"
	TTS    string
	Status string // free-form tail
}

// ParseStatusTable parses faxstat -sal output into a jid-keyed map.
// The parser locates the header row beginning with "JID", ignores any
// preamble, and reads rows whose first token is numeric. An absent
// header yields an empty map.
func ParseStatusTable(text string) map[int]StatusRow {
	rows := map[int]StatusRow{}
	lines := strings.Split(text, "\n")

	start := -1
	for i, ln := range lines {
		if strings.HasPrefix(strings.TrimSpace(ln), "JID") {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return rows
	}

	for _, ln := range lines[start:] {
		if strings.TrimSpace(ln) == "" {
			continue
		}
		toks := strings.Fields(ln)
		if len(toks) < 7 {
			continue
		}
		jid, err := strconv.Atoi(toks[0])
		if err != nil {
			continue
		}
		row := StatusRow{
			JID:    jid,
			Pri:    toks[1],
			State:  toks[2],
			Owner:  toks[3],
			Number: toks[4],
			Pages:  toks[5],
			Dials:  toks[6],
		}
		if len(toks) > 7 {
			row.TTS = toks[7]
		}
		if len(toks) > 8 {
			row.Status = strings.Join(toks[8:], " ")
		}
		rows[jid] = row
	}
	return rows
}

var ratioRe = regexp.MustCompile(`^(\d+)\s*:\s*(\d+)$`)

// ParseRatio parses a "n:m" field. Malformed input yields ok=false;
// callers project that as (0, 0) with the raw string preserved.
func ParseRatio(s string) (a, b int, ok bool) {
	m := ratioRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, 0, false
	}
	a, _ = strconv.Atoi(m[1])
	b, _ = strconv.Atoi(m[2])
	return a, b, true
}
