// Package pipeline drives capture, OCR and translation over a region set.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"

	"screen-translate/src/logutil"
	"screen-translate/src/ocr"
	"screen-translate/src/region"
	"screen-translate/src/translate"
	"screen-translate/src/worker"
)

const (
	FullLabel    = "[full]"
	Unrecognized = "[unrecognized]"
)

// Capturer returns pixels for r, or for the whole screen when r is nil.
type Capturer interface {
	Capture(r *region.Region) (image.Image, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ocr.Result
}

type Translator interface {
	Translate(ctx context.Context, text string, dir translate.Direction, p translate.Provider) translate.Result
}

// Item is the outcome for one region.
type Item struct {
	Label    string   `json:"label"`
	Text     string   `json:"text"`
	Source   string   `json:"source"`
	Pass     ocr.Pass `json:"-"`
	Fallback bool     `json:"fallback"`
}

// Options is the explicit per-scan configuration.
type Options struct {
	Provider    translate.Provider
	IncludeFull bool
	// OnStatus receives progress text; OnItem receives each finished item in
	// region order, tagged with the worker task ID when run through Start.
	// Both are called from the scanning goroutine.
	OnStatus func(text string)
	OnItem   func(taskID string, index int, item Item)
}

type Pipeline struct {
	capture    Capturer
	recognizer Recognizer
	translator Translator
	pool       *worker.Pool
}

func New(capture Capturer, recognizer Recognizer, translator Translator, pool *worker.Pool) *Pipeline {
	return &Pipeline{capture: capture, recognizer: recognizer, translator: translator, pool: pool}
}

// ScanRegions processes every region of set in order, then the full screen if
// requested. A failing region yields a sentinel item and the loop continues.
func (p *Pipeline) ScanRegions(ctx context.Context, set region.Set, opts Options) []Item {
	regions := set.Regions()
	total := len(regions)
	if opts.IncludeFull {
		total++
	}

	taskID := worker.TaskID(ctx)
	items := make([]Item, 0, total)
	emit := func(label string, r *region.Region) {
		notify(opts.OnStatus, fmt.Sprintf("scanning %s...", label))
		item := p.scanOne(ctx, label, r, opts.Provider)
		items = append(items, item)
		if opts.OnItem != nil {
			opts.OnItem(taskID, len(items)-1, item)
		}
		notify(opts.OnStatus, fmt.Sprintf("%s done (%d/%d)", label, len(items), total))
	}

	for i := range regions {
		emit(region.Label(i), &regions[i])
	}
	if opts.IncludeFull {
		emit(FullLabel, nil)
	}

	notify(opts.OnStatus, fmt.Sprintf("done: %d items", len(items)))
	return items
}

func (p *Pipeline) scanOne(ctx context.Context, label string, r *region.Region, provider translate.Provider) Item {
	img, err := p.capture.Capture(r)
	if err != nil {
		log.Printf("Pipeline: capture %s failed: %v", label, err)
		return Item{Label: label, Text: fmt.Sprintf("[capture error: %v]", err), Pass: ocr.PassFailed}
	}

	res := p.recognizer.Recognize(ctx, img)
	log.Printf("Pipeline: %s OCR pass=%s text=%q", label, res.Pass, logutil.SanitizeText(res.Text))
	switch {
	case res.Text == "":
		return Item{Label: label, Text: Unrecognized, Pass: res.Pass}
	case ocr.IsErrorMarker(res.Text):
		return Item{Label: label, Text: res.Text, Source: res.Text, Pass: res.Pass}
	}

	tr := p.translator.Translate(ctx, res.Text, translate.ToTarget, provider)
	return Item{Label: label, Text: tr.Text, Source: res.Text, Pass: res.Pass, Fallback: tr.Fallback}
}

// Start runs a scan on the worker pool so the caller never blocks. The scan
// holds a shared lease on guard for its whole duration. The handle's value is []Item.
func (p *Pipeline) Start(guard *region.Guard, opts Options) (*worker.Handle, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("pipeline has no worker pool")
	}
	name := "scan"
	if opts.IncludeFull {
		name = "scan-full"
	}
	return p.pool.Submit(name, func(ctx context.Context) (any, error) {
		set, release := guard.Acquire()
		defer release()
		return p.ScanRegions(ctx, set, opts), nil
	})
}

// Format renders items as "label\ntext\n" blocks separated by blank lines.
func Format(items []Item) string {
	blocks := make([]string, len(items))
	for i, it := range items {
		blocks[i] = it.Label + "\n" + it.Text + "\n"
	}
	return strings.Join(blocks, "\n")
}

func notify(fn func(string), text string) {
	if fn != nil {
		fn(text)
	}
}
