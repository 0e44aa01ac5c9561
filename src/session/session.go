// Package session delivers the outcome of one scan or translation request.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"screen-translate/src/clipboard"
	"screen-translate/src/pipeline"
)

var ErrNoTarget = errors.New("no result target")

// Report is what a request produced: the per-region items, if any, and the
// formatted copy-all text.
type Report struct {
	Items []pipeline.Item `json:"items,omitempty"`
	Text  string          `json:"text"`
}

type ResultTarget interface {
	OnSuccess(r Report) error
	OnFailure(err error) error
}

type RunFunc func(ctx context.Context) (Report, error)

type Options struct {
	Deadline time.Duration
	Run      RunFunc
	Target   ResultTarget
}

// Execute runs opts.Run under a deadline and hands the result to the target.
// A delivery failure is reported to the target as well as returned.
func Execute(ctx context.Context, opts Options) (Report, error) {
	if opts.Run == nil {
		return Report{}, errors.New("Run is required")
	}
	if opts.Target == nil {
		return Report{}, ErrNoTarget
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	jobCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	report, err := runWithContext(jobCtx, opts.Run)
	if err != nil {
		_ = opts.Target.OnFailure(err)
		return Report{}, err
	}

	if err := opts.Target.OnSuccess(report); err != nil {
		_ = opts.Target.OnFailure(err)
		return Report{}, err
	}
	return report, nil
}

func runWithContext(ctx context.Context, run RunFunc) (Report, error) {
	type outcome struct {
		report Report
		err    error
	}
	resCh := make(chan outcome, 1)

	go func() {
		r, err := run(ctx)
		resCh <- outcome{report: r, err: err}
	}()

	select {
	case o := <-resCh:
		return o.report, o.err
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

type ClipboardTarget struct{}

func (ClipboardTarget) OnSuccess(r Report) error {
	if err := clipboard.Write(r.Text); err != nil {
		return fmt.Errorf("clipboard error: %w", err)
	}
	return nil
}

func (ClipboardTarget) OnFailure(err error) error {
	return nil
}

type StdoutTarget struct {
	Writer io.Writer
}

func (t StdoutTarget) OnSuccess(r Report) error {
	_, err := fmt.Fprint(writerOrStdout(t.Writer), r.Text)
	return err
}

func (t StdoutTarget) OnFailure(err error) error {
	return nil
}

// JSONTarget writes the whole report, or {"error": ...} on failure.
type JSONTarget struct {
	Writer io.Writer
}

func (t JSONTarget) OnSuccess(r Report) error {
	enc := json.NewEncoder(writerOrStdout(t.Writer))
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}

func (t JSONTarget) OnFailure(err error) error {
	if err == nil {
		err = errors.New("unknown session error")
	}
	return json.NewEncoder(writerOrStdout(t.Writer)).Encode(map[string]string{"error": err.Error()})
}

// Targets fans a result out to several targets. Every target is tried; the
// first error is returned.
type Targets []ResultTarget

func (ts Targets) OnSuccess(r Report) error {
	var first error
	for _, t := range ts {
		if err := t.OnSuccess(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (ts Targets) OnFailure(err error) error {
	var first error
	for _, t := range ts {
		if ferr := t.OnFailure(err); ferr != nil && first == nil {
			first = ferr
		}
	}
	return first
}

func writerOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}
