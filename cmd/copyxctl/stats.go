package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"copyx/internal/config"
	"copyx/internal/metrics"
)

func (a *app) statsCmd() *cobra.Command {
	var path, format string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the metrics copyxd wrote when it last stopped",
		Long: `Shows the metrics snapshot copyxd writes on shutdown. --format table
prints one metric per line; --format prometheus prints the Prometheus text
snapshot, which a node_exporter textfile collector can also read directly.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := config.GetDefaultPaths()
			var show func(io.Writer, []byte) error
			switch format {
			case "table":
				if path == "" {
					path = paths.MetricsFile
				}
				show = printStats
			case "prometheus":
				if path == "" {
					path = paths.PrometheusFile
				}
				show = func(w io.Writer, data []byte) error {
					_, err := w.Write(data)
					return err
				}
			default:
				return fmt.Errorf("unknown format %q (want table or prometheus)", format)
			}

			data, err := os.ReadFile(path)
			if errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(cmd.OutOrStdout(), "No metrics yet: %s is written when copyxd stops.\n", path)
				return nil
			}
			if err != nil {
				return err
			}
			return show(cmd.OutOrStdout(), data)
		},
	}
	cmd.Flags().StringVar(&path, "file", "", "Metrics snapshot (default: in the data dir)")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format: table or prometheus")
	return cmd
}

func printStats(w io.Writer, data []byte) error {
	var snap map[string]json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return fmt.Errorf("read metrics snapshot: %w", err)
	}

	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%s\n", strings.TrimPrefix(name, metrics.Namespace+"_"), snap[name])
	}
	return tw.Flush()
}

func (a *app) configCmd() *cobra.Command {
	var (
		format string
		create bool
	)
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Prints the configuration after defaults and COPYX_* environment
overrides are applied. --format picks toml, json or yaml. --init writes
the defaults to the config file if it does not exist yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if create {
				path := a.configPath
				if path == "" {
					path = config.ConfigPath()
				}
				_, created, err := config.LoadOrCreate(path)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote default config to %s\n", path)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", path)
				}
				return nil
			}

			data, err := config.Encode(a.cfg, "."+strings.TrimPrefix(format, "."))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "toml", "Output format: toml, json or yaml")
	cmd.Flags().BoolVar(&create, "init", false, "Write a default config file if none exists")
	return cmd
}
