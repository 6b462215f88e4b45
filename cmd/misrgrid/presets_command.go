package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"misrgrid/internal/config"
)

type presetView struct {
	Name string `json:"name"`
	config.Preset
}

func newPresetsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets [name]",
		Short: "List named region presets or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return showPreset(cmd, ctx, cfg, args[0])
			}

			views := make([]presetView, 0, len(cfg.Presets))
			for _, name := range cfg.PresetNames() {
				views = append(views, presetView{Name: name, Preset: cfg.Presets[name]})
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, views)
			}
			if len(views) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No presets configured")
				return nil
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				active := ""
				if strings.EqualFold(cfg.Region.Preset, v.Name) {
					active = "*"
				}
				rows = append(rows, []string{active + v.Name, v.Location, formatCoord(v.TargetLat), formatCoord(v.TargetLon), formatCoord(v.Margin), yesNo(v.ClipSource != "")})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
				Headers: []string{"Preset", "Location", "Lat", "Lon", "Margin", "Clip"},
				Rows:    rows,
				Aligns:  []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			}))
			return nil
		},
	}
	return cmd
}

func showPreset(cmd *cobra.Command, ctx *commandContext, cfg *config.Config, name string) error {
	preset, ok := cfg.LookupPreset(name)
	if !ok {
		return unknownNameError("preset", name, cfg.PresetNames())
	}
	if ctx.jsonOutput() {
		return writeJSON(cmd, presetView{Name: name, Preset: preset})
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", name)
	if preset.Description != "" {
		fmt.Fprintf(out, "  %s\n", preset.Description)
	}
	fmt.Fprintf(out, "  Location:   %s\n", preset.Location)
	fmt.Fprintf(out, "  Target:     %s, %s\n", formatCoord(preset.TargetLat), formatCoord(preset.TargetLon))
	if preset.Margin > 0 {
		fmt.Fprintf(out, "  Margin:     %s°\n", formatCoord(preset.Margin))
	}
	if preset.Resolution > 0 {
		fmt.Fprintf(out, "  Resolution: %s°\n", strconv.FormatFloat(preset.Resolution, 'f', -1, 64))
	}
	if preset.ClipSource != "" {
		fmt.Fprintf(out, "  Clip:       %s\n", preset.ClipSource)
	}
	for _, note := range preset.Notes {
		fmt.Fprintf(out, "  - %s\n", note)
	}
	return nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
