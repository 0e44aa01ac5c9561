package ocr

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"

	"screen-translate/src/preprocess"
)

const errorMarkerPrefix = "[OCR error: "

// Recognizer is the external text-recognition engine.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image, lang string) (string, error)
}

// RecognizerFunc adapts a plain function to Recognizer.
type RecognizerFunc func(ctx context.Context, img image.Image, lang string) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	return f(ctx, img, lang)
}

// Pass records which recognition attempt produced a Result.
type Pass int

const (
	PassEnhanced Pass = iota
	PassRaw
	PassFailed
)

func (p Pass) String() string {
	switch p {
	case PassEnhanced:
		return "enhanced"
	case PassRaw:
		return "raw"
	case PassFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Result struct {
	Text string
	Pass Pass
}

// Adapter runs the recognizer on the enhanced image first and falls back to the
// raw capture when that yields nothing. Failures come back as marker text.
type Adapter struct {
	engine Recognizer
	lang   string
}

func NewAdapter(engine Recognizer, lang string) *Adapter {
	if lang == "" {
		lang = "eng"
	}
	return &Adapter{engine: engine, lang: lang}
}

func (a *Adapter) Recognize(ctx context.Context, img image.Image) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("OCR: recognizer panicked: %v", r)
			res = Result{Text: ErrorMarker(fmt.Errorf("%v", r)), Pass: PassFailed}
		}
	}()

	if a.engine == nil {
		return Result{Text: ErrorMarker(fmt.Errorf("no recognizer configured")), Pass: PassFailed}
	}
	if img == nil {
		return Result{Text: ErrorMarker(fmt.Errorf("no image")), Pass: PassFailed}
	}

	text, err := a.engine.Recognize(ctx, preprocess.Enhance(img), a.lang)
	if err != nil {
		log.Printf("OCR: enhanced pass failed: %v", err)
		return Result{Text: ErrorMarker(err), Pass: PassFailed}
	}
	if text = strings.TrimSpace(text); text != "" {
		return Result{Text: text, Pass: PassEnhanced}
	}

	log.Printf("OCR: enhanced pass empty, retrying on raw image")
	text, err = a.engine.Recognize(ctx, img, a.lang)
	if err != nil {
		log.Printf("OCR: raw pass failed: %v", err)
		return Result{Text: ErrorMarker(err), Pass: PassFailed}
	}
	return Result{Text: strings.TrimSpace(text), Pass: PassRaw}
}

// ErrorMarker renders err as the text placed in a failed Result.
func ErrorMarker(err error) string {
	return errorMarkerPrefix + err.Error() + "]"
}

// IsErrorMarker reports whether text is a failure marker from this package.
func IsErrorMarker(text string) bool {
	return strings.HasPrefix(text, errorMarkerPrefix) && strings.HasSuffix(text, "]")
}
