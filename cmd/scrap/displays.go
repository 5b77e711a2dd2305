package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/breeze-rmm/scrap/internal/dxgi"
)

var displaysFormat string

var displaysCmd = &cobra.Command{
	Use:   "displays",
	Short: "List displays that support desktop duplication",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := setup(cmd); err != nil {
			return err
		}
		b, err := dxgi.NewBackend()
		if err != nil {
			return err
		}
		displays, err := dxgi.Collect(b)
		if err != nil {
			return err
		}
		rows := make([]displayRow, 0, len(displays))
		for i, d := range displays {
			rows = append(rows, newDisplayRow(i, d))
			d.Close()
		}
		return renderDisplays(cmd.OutOrStdout(), displaysFormat, rows)
	},
}

func init() {
	displaysCmd.Flags().StringVar(&displaysFormat, "format", "text", "output format (text, json, yaml)")
}

type displayRow struct {
	Index    int    `json:"index" yaml:"index"`
	Name     string `json:"name" yaml:"name"`
	X        int    `json:"x" yaml:"x"`
	Y        int    `json:"y" yaml:"y"`
	Width    int    `json:"width" yaml:"width"`
	Height   int    `json:"height" yaml:"height"`
	Rotation string `json:"rotation" yaml:"rotation"`
	Primary  bool   `json:"primary" yaml:"primary"`
	Attached bool   `json:"attached" yaml:"attached"`
}

func newDisplayRow(index int, d *dxgi.Display) displayRow {
	x, y := d.Origin()
	return displayRow{
		Index:    index,
		Name:     d.Name(),
		X:        x,
		Y:        y,
		Width:    d.Width(),
		Height:   d.Height(),
		Rotation: d.Rotation().String(),
		Primary:  d.IsPrimary(),
		Attached: d.AttachedToDesktop(),
	}
}

func renderDisplays(w io.Writer, format string, rows []displayRow) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "INDEX\tNAME\tORIGIN\tSIZE\tROTATION\tPRIMARY")
		for _, r := range rows {
			fmt.Fprintf(tw, "%d\t%s\t%d,%d\t%dx%d\t%s\t%t\n",
				r.Index, r.Name, r.X, r.Y, r.Width, r.Height, r.Rotation, r.Primary)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (use text, json or yaml)", format)
	}
}
