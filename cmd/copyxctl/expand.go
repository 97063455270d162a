package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"copyx/internal/clipboard"
	"copyx/internal/expander"
	"copyx/internal/keystroke"
	"copyx/internal/placeholder"
	"copyx/internal/snippet"
	"copyx/internal/surface"
)

func (a *app) resolver(useClipboard bool) *placeholder.Resolver {
	var clip placeholder.Clipboard
	if useClipboard && clipboard.Available() {
		clip = clipboard.NewSystem()
	}
	return placeholder.New(placeholder.Options{
		Clipboard: clip,
		Layouts: placeholder.Layouts{
			Date:     a.cfg.Placeholders.DateLayout,
			Time:     a.cfg.Placeholders.TimeLayout,
			DateTime: a.cfg.Placeholders.DateTimeLayout,
		},
		ClipboardTimeout: a.cfg.ClipboardTimeout(),
		Logger:           a.logger,
	})
}

// withCaret inserts marker at the rune offset caret of text.
func withCaret(text string, caret int, marker string) string {
	runes := []rune(text)
	if caret < 0 || caret > len(runes) {
		caret = len(runes)
	}
	return string(runes[:caret]) + marker + string(runes[caret:])
}

func (a *app) expandCmd() *cobra.Command {
	var (
		marker      string
		noClipboard bool
	)
	cmd := &cobra.Command{
		Use:   "expand <template>",
		Short: "Resolve a template and show where the caret lands",
		Long: `Resolves placeholders in template with the current time and clipboard
and prints the result with the caret marked.

Example:
  copyxctl expand 'Hi ${cursor}, see you ${date}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			template := unescape(args[0])
			// The system clipboard is only touched when the template asks for it.
			useClipboard := !noClipboard && placeholder.NeedsClipboard(template)
			exp, diag := a.resolver(useClipboard).Resolve(cmd.Context(), template, "")
			if diag.ClipboardSkipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "clipboard not substituted: %v\n", diag.ClipboardErr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), withCaret(exp.Text, exp.CaretOffset(), marker))
			return nil
		},
	}
	cmd.Flags().StringVar(&marker, "marker", "|", "Text marking the caret")
	cmd.Flags().BoolVar(&noClipboard, "no-clipboard", false, "Leave ${clipboard} unresolved")
	return cmd
}

// simulation is the outcome of typing into a simulated surface.
type simulation struct {
	Text     string
	Caret    int
	Expanded []string
}

// newTarget returns an empty element of the given kind together with a
// function reading its text and caret.
func newTarget(kind string) (any, func() (string, int), error) {
	inputType := "text"
	switch kind {
	case "textarea":
		inputType = "textarea"
		fallthrough
	case "input":
		f := surface.NewTextField(inputType, "")
		return f, func() (string, int) { return f.Value(), f.SelectionEnd() }, nil
	case "richtext":
		d := surface.NewRichText()
		return d, func() (string, int) { return d.Text(), d.CaretOffset() }, nil
	}
	return nil, nil, fmt.Errorf("unknown surface %q (want input, textarea or richtext)", kind)
}

// simulate types text key by key into an empty element through an engine
// backed by dir, applying the keys the engine does not suppress.
func simulate(ctx context.Context, dir expander.Directory, resolver *placeholder.Resolver, opts keystroke.Options, kind, text string) (simulation, error) {
	target, read, err := newTarget(kind)
	if err != nil {
		return simulation{}, err
	}
	editor := target.(interface {
		TypeText(string)
		Backspace()
	})

	engine := expander.New(expander.Options{
		Directory: dir,
		Resolver:  resolver,
		Buffer:    opts,
	})

	var out simulation
	for _, ev := range keystroke.TextEvents(text, "simulate", time.Now(), 10*time.Millisecond) {
		d, err := engine.HandleKey(ctx, expander.KeyEvent{Event: ev, Target: target})
		if err != nil {
			return out, err
		}
		if d.Suppress {
			out.Expanded = append(out.Expanded, d.Shortcut)
			continue
		}
		switch ev.Key {
		case keystroke.KeyBackspace:
			editor.Backspace()
		case keystroke.KeyEnter:
			editor.TypeText("\n")
		case keystroke.KeyTab:
			editor.TypeText("\t")
		default:
			if ev.Rune != 0 {
				editor.TypeText(string(ev.Rune))
			}
		}
	}
	out.Text, out.Caret = read()
	return out, nil
}

func (a *app) simulateCmd() *cobra.Command {
	var (
		kind        string
		marker      string
		noClipboard bool
	)
	cmd := &cobra.Command{
		Use:   "simulate <text>",
		Short: "Type text into a simulated field through the expander",
		Long: `Types text one key at a time into an empty simulated field, expanding
shortcuts from the configured collection exactly as copyxd would, then
prints the field with the caret marked. \n, \t and \b in text stand for
Enter, Tab and Backspace.

Example:
  copyxctl simulate 'Dear @em '`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			dir := snippet.NewDirectory(st, a.logger)
			if err := dir.Load(cmd.Context()); err != nil {
				return err
			}
			separators, err := keystroke.ParseSeparators(a.cfg.Expander.Separators)
			if err != nil {
				return err
			}

			sim, err := simulate(cmd.Context(), dir, a.resolver(!noClipboard), keystroke.Options{
				IdleTimeout: a.cfg.IdleTimeout(),
				MaxLen:      a.cfg.Expander.MaxBuffer,
				Separators:  separators,
			}, kind, unescape(args[0]))
			if err != nil {
				return err
			}
			printSimulation(cmd.OutOrStdout(), sim, marker)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "surface", "input", "Field to type into: input, textarea or richtext")
	cmd.Flags().StringVar(&marker, "marker", "|", "Text marking the caret")
	cmd.Flags().BoolVar(&noClipboard, "no-clipboard", false, "Leave ${clipboard} unresolved")
	return cmd
}

func printSimulation(w io.Writer, sim simulation, marker string) {
	fmt.Fprintln(w, withCaret(sim.Text, sim.Caret, marker))
	if len(sim.Expanded) == 0 {
		fmt.Fprintln(w, "(no shortcuts expanded)")
		return
	}
	for _, s := range sim.Expanded {
		fmt.Fprintf(w, "expanded %s\n", s)
	}
}
