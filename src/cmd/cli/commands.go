package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"screen-translate/src/chat"
	"screen-translate/src/pipeline"
	"screen-translate/src/region"
	"screen-translate/src/server"
	"screen-translate/src/session"
	"screen-translate/src/translate"
)

const scanDeadline = 2 * time.Minute

func newSelectCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "select LEFT TOP RIGHT BOTTOM",
		Short: "Save the main region from two drag corners",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			coords, err := parseInts(args)
			if err != nil {
				return err
			}
			rt, err := opts.bootstrap(false, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			r, err := rt.Loop.SelectMain(coords[0], coords[1], coords[2], coords[3])
			if err != nil {
				return fmt.Errorf("invalid selection: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "main region saved to %s: %s (%dx%d)\n", rt.Store.Path(), r, r.Width(), r.Height())
			return nil
		},
	}
}

func newScanCmd(opts *cliOptions) *cobra.Command {
	var (
		full       bool
		extras     []string
		jsonOutput bool
		copyResult bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "OCR and translate the saved region plus any extra regions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.bootstrap(false, copyResult)
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.Loop.LoadRegions(); err != nil {
				if errors.Is(err, region.ErrNotFound) {
					return fmt.Errorf("no main region saved, run `select` first: %w", err)
				}
				return err
			}
			for _, raw := range extras {
				coords, err := parseInts(strings.Split(raw, ","))
				if err != nil || len(coords) != 4 {
					return fmt.Errorf("--extra wants l,t,r,b, got %q", raw)
				}
				if _, added, err := rt.Loop.AddExtra(coords[0], coords[1], coords[2], coords[3]); err != nil {
					return fmt.Errorf("extra region %q: %w", raw, err)
				} else if !added {
					opts.verbosef("extra region %s already present", raw)
				}
			}

			var target session.ResultTarget = session.StdoutTarget{Writer: cmd.OutOrStdout()}
			if jsonOutput {
				target = session.JSONTarget{Writer: cmd.OutOrStdout()}
			}
			if copyResult {
				target = session.Targets{target, session.ClipboardTarget{}}
			}

			_, err = session.Execute(cmd.Context(), session.Options{
				Deadline: scanDeadline,
				Target:   target,
				Run: func(ctx context.Context) (session.Report, error) {
					h, err := rt.Loop.Scan(full)
					if err != nil {
						return session.Report{}, err
					}
					opts.verbosef("scan task %s started", h.ID())
					v, err := h.Wait()
					if err != nil {
						return session.Report{}, err
					}
					items := v.([]pipeline.Item)
					return session.Report{Items: items, Text: pipeline.Format(items)}, nil
				},
			})
			return err
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "Also OCR the whole screen")
	cmd.Flags().StringArrayVar(&extras, "extra", nil, "Extra region as l,t,r,b (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&copyResult, "copy", false, "Copy the formatted result to the clipboard")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Translation provider (primary, secondary, local)")
	return cmd
}

func newTranslateCmd(opts *cliOptions) *cobra.Command {
	var (
		to         string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "translate TEXT...",
		Short: "Translate text between English and Chinese",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := translate.ParseDirection(to)
			if err != nil {
				return err
			}
			rt, err := opts.bootstrap(false, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			h, err := rt.Loop.Translate(strings.Join(args, " "), dir)
			if err != nil {
				return err
			}
			v, err := h.Wait()
			if err != nil {
				return err
			}
			res := v.(translate.Result)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetEscapeHTML(false)
				return enc.Encode(res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "zh", "Target language: zh or en")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Translation provider (primary, secondary, local)")
	return cmd
}

func newProbeCmd(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the translation provider answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.bootstrap(false, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			h, err := rt.Loop.Probe()
			if err != nil {
				return err
			}
			v, _ := h.Wait()
			provider := rt.Loop.Provider()
			if ok, _ := v.(bool); !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: FAILED\n", provider)
				return fmt.Errorf("provider %s did not answer correctly", provider)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", provider)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.provider, "provider", "", "Translation provider (primary, secondary, local)")
	return cmd
}

func newChatCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat MESSAGE...",
		Short: "Send one message to the assistant and stream the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.bootstrap(true, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.Chat.Send(strings.Join(args, " ")); err != nil {
				return err
			}
			return streamReply(cmd, rt.Chat)
		},
	}
}

// streamReply prints fragments as they arrive until the session re-arms.
func streamReply(cmd *cobra.Command, s *chat.Session) error {
	var turnErr error
	for e := range s.Events() {
		switch e.Kind {
		case chat.EventFragment:
			fmt.Fprint(cmd.OutOrStdout(), e.Turn.Content)
		case chat.EventError:
			turnErr = errors.New(e.Err)
		case chat.EventState:
			if e.State == chat.Idle {
				fmt.Fprintln(cmd.OutOrStdout())
				return turnErr
			}
		}
	}
	return turnErr
}

func newServeCmd(opts *cliOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the local HTTP API and event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.bootstrap(false, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if _, err := rt.Loop.LoadRegions(); err != nil && !errors.Is(err, region.ErrNotFound) {
				return err
			}
			if addr == "" {
				addr = rt.Config.APIAddr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go rt.Loop.Run(ctx)
			return server.New(rt.Loop).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default API_ADDR or 127.0.0.1:8765)")
	return cmd
}

func parseInts(args []string) ([]int, error) {
	out := make([]int, len(args))
	for i, a := range args {
		n, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", a)
		}
		out[i] = n
	}
	return out, nil
}
