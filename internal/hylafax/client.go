// Package hylafax wraps the HylaFAX command-line tools (sendfax,
// faxrm, faxstat) and the doneq completion records behind typed calls.
// The fax subsystem itself is opaque; these are its only interfaces.
package hylafax

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/thomaskien/kienzlefax/internal/execx"
)

// Client invokes the fax tools for one backend host.
type Client struct {
	Host string
	User string // exported as FAXUSER for every call

	SendfaxBin string
	FaxrmBin   string
	FaxstatBin string
	DoneqDir   string

	SendTimeout   time.Duration
	CancelTimeout time.Duration
	StatusTimeout time.Duration
}

// SubmitResult captures one sendfax attempt. HasJID, not the exit
// code, determines success.
type SubmitResult struct {
	RC     int
	Stdout string
	Stderr string
	JID    int
	HasJID bool
}

func (c *Client) env() map[string]string {
	return map[string]string{"FAXUSER": c.User}
}

// Submit sends the document to the given (already normalised) number
// non-interactively. A timeout surfaces as an error wrapping
// execx.ErrTimeout; other non-zero exits are reported in the result.
func (c *Client) Submit(ctx context.Context, number, docPath string) (SubmitResult, error) {
	argv := []string{c.SendfaxBin, "-n", "-d", number, docPath}
	res, err := execx.Run(ctx, argv, c.env(), c.SendTimeout)
	if err != nil {
		return SubmitResult{RC: res.RC, Stdout: res.Stdout, Stderr: res.Stderr}, err
	}
	out := SubmitResult{RC: res.RC, Stdout: res.Stdout, Stderr: res.Stderr}
	out.JID, out.HasJID = ParseRequestID(res.Stdout, res.Stderr)
	return out, nil
}

// Cancel removes the backend request. Timeouts are returned for the
// caller to log; cancellation is assumed to be in progress regardless.
func (c *Client) Cancel(ctx context.Context, jid int) (execx.Result, error) {
	argv := []string{c.FaxrmBin, "-h", c.Host, fmt.Sprint(jid)}
	return execx.Run(ctx, argv, c.env(), c.CancelTimeout)
}

// Status runs faxstat -sal and parses the live table.
func (c *Client) Status(ctx context.Context) (map[int]StatusRow, error) {
	argv := []string{c.FaxstatBin, "-sal", "-h", c.Host}
	res, err := execx.Run(ctx, argv, c.env(), c.StatusTimeout)
	if err != nil {
		return nil, err
	}
	if res.RC != 0 {
		return nil, fmt.Errorf("faxstat rc=%d err=%q", res.RC, res.Stderr)
	}
	return ParseStatusTable(res.Stdout), nil
}

// DoneqPath returns the completion record path for a request id.
func (c *Client) DoneqPath(jid int) string {
	return filepath.Join(c.DoneqDir, fmt.Sprintf("q%d", jid))
}

// ReadDoneq parses the completion record file at path. A missing file
// surfaces as fs.ErrNotExist ("not ready").
func ReadDoneq(path string) (*DoneqRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := ParseDoneq(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rec, nil
}
