package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"screen-translate/src/config"
	"screen-translate/src/logutil"
	"screen-translate/src/ocr"
	"screen-translate/src/pipeline"
	"screen-translate/src/runtimeinit"
)

type cliOptions struct {
	envFile  string
	provider string
	verbose  bool

	// Test seams; nil uses the real screen and tesseract.
	capturer   pipeline.Capturer
	recognizer ocr.Recognizer
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	return runWithArgs(normalizeLegacyArgs(os.Args))
}

func runWithArgs(args []string) error {
	if len(args) == 0 {
		args = []string{"screen-translate"}
	}

	opts := &cliOptions{}
	cmd := newRootCmd(opts)
	cmd.SetArgs(args[1:])
	return cmd.Execute()
}

func newRootCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "screen-translate",
		Short:         "Capture screen regions, OCR them and translate the text",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to a .env file (highest precedence)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output to stderr")

	cmd.AddCommand(
		newSelectCmd(opts),
		newScanCmd(opts),
		newTranslateCmd(opts),
		newProbeCmd(opts),
		newOCRCmd(opts),
		newChatCmd(opts),
		newServeCmd(opts),
	)
	return cmd
}

func (o *cliOptions) loadOptions() config.LoadOptions {
	return config.LoadOptions{EnvFileOverride: o.envFile, ProviderOverride: o.provider}
}

func (o *cliOptions) setupLogging(enableFile bool) {
	if o.verbose {
		logutil.SetupVerbose(enableFile)
		return
	}
	logutil.Setup(enableFile)
}

func (o *cliOptions) bootstrap(requireChat, initClipboard bool) (*runtimeinit.Runtime, error) {
	return runtimeinit.Bootstrap(runtimeinit.Options{
		LoadOptions:   o.loadOptions(),
		SetupLogging:  o.setupLogging,
		RequireChat:   requireChat,
		InitClipboard: initClipboard,
		Capturer:      o.capturer,
		Recognizer:    o.recognizer,
	})
}

func (o *cliOptions) verbosef(format string, args ...any) {
	if o.verbose {
		fmt.Fprintf(os.Stderr, "[verbose] "+format+"\n", args...)
	}
}

// normalizeLegacyArgs accepts single-dash spellings of the long flags.
func normalizeLegacyArgs(args []string) []string {
	if len(args) == 0 {
		return args
	}

	normalized := make([]string, len(args))
	copy(normalized, args)

	long := []string{"file", "json", "verbose", "env-file", "provider", "full", "extra", "copy", "to", "addr"}
	for i := 1; i < len(normalized); i++ {
		arg := normalized[i]
		if strings.HasPrefix(arg, "--") || !strings.HasPrefix(arg, "-") {
			continue
		}
		for _, name := range long {
			if arg == "-"+name || strings.HasPrefix(arg, "-"+name+"=") {
				normalized[i] = "-" + arg
				break
			}
		}
	}

	return normalized
}
