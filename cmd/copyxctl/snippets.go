package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"copyx/internal/keystroke"
	"copyx/internal/snippet"
	"copyx/internal/store"
)

func (a *app) listCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snippets in stored order",
		Long: `Lists every snippet. With --search only snippets whose shortcut, label
or body contain the text (ignoring case) are shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			all, err := st.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			printSnippets(cmd.OutOrStdout(), store.Filter(all, search))
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "Only show snippets containing this text")
	return cmd
}

func printSnippets(w io.Writer, items []snippet.Snippet) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No snippets.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SHORTCUT\tLABEL\tBODY\tID")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Shortcut, s.Label, preview(s.Body, 40), s.ID)
	}
	tw.Flush()
}

// preview shortens body to one line of at most n runes.
func preview(body string, n int) string {
	body = strings.NewReplacer("\n", `\n`, "\t", `\t`).Replace(body)
	runes := []rune(body)
	if len(runes) <= n {
		return body
	}
	return string(runes[:n-3]) + "..."
}

func (a *app) addCmd() *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "add <shortcut> <body>",
		Short: "Add a snippet",
		Long: `Adds a snippet. The body may use ${cursor}, ${date}, ${time},
${datetime} and ${clipboard}; quote it so the shell leaves it alone.

Example:
  copyxctl add @em 'you@example.com'
  copyxctl add sig 'Regards,\n${cursor}' --label signature`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := snippet.Snippet{
				Shortcut: args[0],
				Body:     unescape(args[1]),
				Label:    label,
			}
			if err := a.checkReachable(s); err != nil {
				return err
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			s, err = st.Put(cmd.Context(), s)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", s.Shortcut, s.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&label, "label", "l", "", "Label shown in listings")
	return cmd
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id|shortcut>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a snippet",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			s, err := st.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s (%s)\n", s.Shortcut, s.ID)
			return nil
		},
	}
}

func (a *app) importCmd() *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import snippets from a JSON collection",
		Long: `Imports a JSON collection: an array of snippet records, or an object
with a "snippets" array. By default snippets are added and any whose
shortcut is already taken are skipped. --replace swaps the whole
collection for the file's contents.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			items, err := snippet.Decode(data)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			if err := a.checkReachable(items...); err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			return importSnippets(cmd.Context(), cmd.OutOrStdout(), st, items, replace)
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace the collection instead of merging")
	return cmd
}

func importSnippets(ctx context.Context, w io.Writer, st store.Store, items []snippet.Snippet, replace bool) error {
	if replace {
		if err := st.ReplaceAll(ctx, items); err != nil {
			return err
		}
		fmt.Fprintf(w, "Replaced collection with %d snippets\n", len(items))
		return nil
	}

	added, skipped, err := store.Merge(ctx, st, items)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Imported %d snippets\n", added)
	for _, s := range skipped {
		fmt.Fprintf(w, "  skipped %s: shortcut already in use\n", s.Shortcut)
	}
	return nil
}

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the collection as JSON",
		Long:  `Writes the collection as a JSON array to file, or to stdout without one.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			all, err := st.GetAll(cmd.Context())
			if err != nil {
				return err
			}
			data, err := snippet.Encode(all)
			if err != nil {
				return err
			}
			data = append(data, '\n')

			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(args[0], data, 0600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d snippets to %s\n", len(all), args[0])
			return nil
		},
	}
}

// checkReachable rejects shortcuts too long to ever fit the expander's
// keystroke buffer.
func (a *app) checkReachable(items ...snippet.Snippet) error {
	buf := keystroke.NewBuffer(keystroke.Options{MaxLen: a.cfg.Expander.MaxBuffer})
	for _, s := range items {
		if !buf.Fits(s.Shortcut) {
			return fmt.Errorf("%w: shortcut %q is longer than expander.max_buffer (%d runes) and could never expand",
				store.ErrInvalidSnippet, s.Shortcut, buf.MaxLen())
		}
	}
	return nil
}

// unescape turns the two-character sequences \n, \t and \b typed on a
// command line into the control characters they name.
func unescape(s string) string {
	return strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\b`, "\b", `\\`, `\`).Replace(s)
}
