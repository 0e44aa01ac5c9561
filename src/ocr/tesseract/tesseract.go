// Package tesseract is the gosseract-backed ocr.Recognizer.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// Engine runs Tesseract through gosseract. A new client is created per call,
// so an Engine is safe for concurrent use.
type Engine struct {
	// TessdataPrefix overrides the tessdata directory when non-empty.
	TessdataPrefix string
}

func New(tessdataPrefix string) *Engine {
	return &Engine{TessdataPrefix: tessdataPrefix}
}

func (e *Engine) Recognize(ctx context.Context, img image.Image, lang string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image as PNG: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.TessdataPrefix); err != nil {
			return "", fmt.Errorf("failed to set tessdata prefix: %w", err)
		}
	}
	if lang != "" {
		if err := client.SetLanguage(lang); err != nil {
			return "", fmt.Errorf("failed to set language %q: %w", lang, err)
		}
	}
	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract OCR failed: %w", err)
	}
	return text, nil
}

// Version reports the linked Tesseract version.
func Version() string {
	client := gosseract.NewClient()
	defer client.Close()
	return client.Version()
}
