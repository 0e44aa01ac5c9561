package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"screen-translate/src/config"
	"screen-translate/src/ocr"
	"screen-translate/src/ocr/tesseract"
)

const (
	maxFileSizeMB = 10
	maxFileSize   = maxFileSizeMB * 1024 * 1024
)

type OCRResult struct {
	Text      string  `json:"text"`
	Source    string  `json:"source"`
	Format    string  `json:"format"`
	Pass      string  `json:"pass"`
	Timestamp string  `json:"timestamp"`
	Duration  float64 `json:"duration_seconds"`
	CharCount int     `json:"character_count"`
}

func newOCRCmd(opts *cliOptions) *cobra.Command {
	var (
		filePath   string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "ocr",
		Short: "Run OCR on an image file (png, jpeg, gif, bmp, tiff, webp)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithOptions(opts.loadOptions())
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			opts.setupLogging(cfg.EnableFileLogging)

			engine := opts.recognizer
			if engine == nil {
				engine = tesseract.New(cfg.TessdataPrefix)
				opts.verbosef("tesseract %s", tesseract.Version())
			}
			opts.verbosef("OCR language %s", cfg.OCRLanguage)

			data, err := readImageInput(filePath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			img, format, err := decodeImage(data)
			if err != nil {
				return err
			}
			opts.verbosef("decoded %s image %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())

			start := time.Now()
			res := ocr.NewAdapter(engine, cfg.OCRLanguage).Recognize(cmd.Context(), img)
			elapsed := time.Since(start)
			if res.Pass == ocr.PassFailed {
				return fmt.Errorf("OCR failed: %s", res.Text)
			}

			return outputResult(cmd.OutOrStdout(), OCRResult{
				Text:      res.Text,
				Source:    filePath,
				Format:    format,
				Pass:      res.Pass.String(),
				Timestamp: time.Now().UTC().Format(time.RFC3339),
				Duration:  elapsed.Seconds(),
				CharCount: len([]rune(res.Text)),
			}, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&filePath, "file", "", "Path to the image (use '-' for stdin)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readImageInput(filePath string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if filePath == "-" {
		data, err = io.ReadAll(io.LimitReader(stdin, maxFileSize+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		data, err = os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("input file is empty")
	}
	if len(data) > maxFileSize {
		return nil, fmt.Errorf("input file exceeds maximum size of %d MB", maxFileSizeMB)
	}
	return data, nil
}

func decodeImage(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("unsupported or corrupt image: %w", err)
	}
	return img, format, nil
}

func outputResult(w io.Writer, result OCRResult, jsonOutput bool) error {
	if !jsonOutput {
		_, err := fmt.Fprintln(w, result.Text)
		return err
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(result); err != nil {
		return fmt.Errorf("failed to encode JSON output: %w", err)
	}
	return nil
}
