package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"misrgrid/internal/batch"
	"misrgrid/internal/logging"
	"misrgrid/internal/qa"
)

type flagView struct {
	Name        string   `json:"name"`
	Bits        string   `json:"bits"`
	ValidValues []uint32 `json:"valid_values"`
	Description string   `json:"description"`
	Enabled     bool     `json:"enabled"`
}

func newFlagsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "List the quality flags available for filtering",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			settings, err := batch.SettingsFromConfig(cfg)
			if err != nil {
				return err
			}
			filter := qa.New(logging.NewNop())
			for _, def := range settings.Quality.Custom {
				if err := filter.AddCustomFlag(def); err != nil {
					return err
				}
			}

			views := make([]flagView, 0)
			for _, def := range filter.AvailableFlags() {
				views = append(views, flagView{
					Name:        def.Name,
					Bits:        def.Field.String(),
					ValidValues: def.ValidValues,
					Description: def.Description,
					Enabled:     settings.Quality.Enabled && slices.Contains(settings.Quality.Flags, def.Name),
				})
			}

			if ctx.jsonOutput() {
				return writeJSON(cmd, views)
			}
			rows := make([][]string, 0, len(views))
			for _, v := range views {
				rows = append(rows, []string{v.Name, v.Bits, joinValues(v.ValidValues), yesNo(v.Enabled), v.Description})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(tableSpec{
				Title:   "Quality flags (source: " + settings.Quality.Source + ")",
				Headers: []string{"Flag", "Bits", "Valid", "Enabled", "Description"},
				Rows:    rows,
			}))
			return nil
		},
	}
}

func joinValues(values []uint32) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatUint(uint64(v), 10)
	}
	return strings.Join(parts, ",")
}
