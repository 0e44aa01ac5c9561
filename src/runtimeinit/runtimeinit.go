package runtimeinit

import (
	"errors"
	"fmt"
	"log"
	"time"

	"screen-translate/src/chat"
	"screen-translate/src/clipboard"
	"screen-translate/src/config"
	"screen-translate/src/eventloop"
	"screen-translate/src/ocr"
	"screen-translate/src/ocr/tesseract"
	"screen-translate/src/pipeline"
	"screen-translate/src/region"
	"screen-translate/src/screenshot"
	"screen-translate/src/translate"
	"screen-translate/src/worker"
)

var ErrChatCredentials = errors.New("chat credentials missing")

type Options struct {
	LoadOptions   config.LoadOptions
	SetupLogging  func(bool)
	RequireChat   bool
	InitClipboard bool

	// Overrides for tests and headless use; nil means the real backend.
	Capturer   pipeline.Capturer
	Recognizer ocr.Recognizer
}

// Runtime holds every long-lived component built from the configuration.
type Runtime struct {
	Config     *config.Config
	Pool       *worker.Pool
	Store      *region.Store
	Translator *translate.Client
	Pipeline   *pipeline.Pipeline
	Chat       *chat.Session
	Loop       *eventloop.Loop
}

func Bootstrap(opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg.EnableFileLogging)
	}

	provider, err := translate.ParseProvider(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("TRANSLATE_PROVIDER: %w", err)
	}
	if opts.RequireChat && !cfg.ChatConfigured() {
		return nil, fmt.Errorf("%w: set SPARK_APP_ID, SPARK_API_KEY, SPARK_API_SECRET (or %s) and SPARK_ASSISTANT_ID",
			ErrChatCredentials, config.APISecretPathEnvVar)
	}

	if opts.InitClipboard {
		if err := clipboard.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize clipboard: %w", err)
		}
	}

	capturer := opts.Capturer
	if capturer == nil {
		capturer = screenshot.New()
	}
	engine := opts.Recognizer
	if engine == nil {
		engine = tesseract.New(cfg.TessdataPrefix)
	}

	rt := &Runtime{
		Config: cfg,
		Pool:   worker.New(cfg.Workers, 8),
		Store:  region.NewStore(cfg.RegionFile),
		Translator: translate.New(translate.Config{
			PrimaryURL:   cfg.PrimaryURL,
			SecondaryURL: cfg.SecondaryURL,
			Timeout:      time.Duration(cfg.TranslateTimeoutSec) * time.Second,
		}),
	}
	rt.Pipeline = pipeline.New(capturer, ocr.NewAdapter(engine, cfg.OCRLanguage), rt.Translator, rt.Pool)

	loopOpts := eventloop.Options{
		Store:      rt.Store,
		Pipeline:   rt.Pipeline,
		Translator: rt.Translator,
		Pool:       rt.Pool,
		Provider:   provider,
	}
	if cfg.ChatConfigured() {
		rt.Chat = chat.New(chat.Config{
			AppID:        cfg.SparkAppID,
			APIKey:       cfg.SparkAPIKey,
			APISecret:    cfg.SparkAPISecret,
			Host:         cfg.SparkHost,
			Path:         cfg.SparkPath(),
			MaxTokens:    cfg.ChatMaxTokens,
			PingInterval: time.Duration(cfg.ChatPingSec) * time.Second,
		})
		loopOpts.Chat = rt.Chat
	} else {
		log.Printf("Chat disabled: credentials not configured")
	}
	rt.Loop = eventloop.New(loopOpts)

	log.Printf("Runtime ready: provider=%s regions=%s workers=%d", provider, cfg.RegionFile, cfg.Workers)
	return rt, nil
}

// Close drains queued work. Chat turns in flight finish on their own.
func (r *Runtime) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}
