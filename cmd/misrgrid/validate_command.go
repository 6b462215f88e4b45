package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"misrgrid/internal/batch"
	"misrgrid/internal/logging"
	"misrgrid/internal/preflight"
	"misrgrid/internal/swath"
)

type validateReport struct {
	Checks     []preflight.Result `json:"checks"`
	Validation batch.Validation   `json:"inputs"`
}

func (r validateReport) ok() bool {
	return len(preflight.Failed(r.Checks)) == 0 && len(r.Validation.Invalid) == 0
}

func newValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file|dir]...",
		Short: "Check the environment and inputs without processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.configCopy()
			if err != nil {
				return err
			}
			settings, err := batch.SettingsFromConfig(cfg)
			if err != nil {
				return err
			}
			report := validateReport{Checks: preflight.RunAll(cmd.Context(), cfg)}

			if len(args) > 0 {
				registry := swath.DefaultRegistry()
				paths, err := collectInputs(args, inputFilter(settings, registry))
				if err != nil {
					return err
				}
				pipeline, err := batch.Select(settings, batch.Deps{Opener: registry, Logger: logging.NewNop()})
				if err != nil {
					return err
				}
				report.Validation = pipeline.ValidateInputs(context.WithoutCancel(cmd.Context()), paths)
			}

			if ctx.jsonOutput() {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), renderValidation(report, len(args) > 0, shouldColorize(cmd.OutOrStdout())))
			}
			if !report.ok() {
				return errors.New("validation failed")
			}
			return nil
		},
	}
}

func renderValidation(report validateReport, withInputs, colorize bool) string {
	lines := renderSectionHeader("Environment", colorize)
	for _, check := range report.Checks {
		lines = append(lines, preflightLine(check, colorize))
	}
	if withInputs {
		v := report.Validation
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Inputs", colorize)...)
		for _, path := range v.Valid {
			lines = append(lines, renderStatusLine(shortPath(path), statusOK, "", colorize))
		}
		for _, msg := range v.Invalid {
			lines = append(lines, renderStatusLine("Invalid", statusError, msg, colorize))
		}
		for _, msg := range v.Warnings {
			lines = append(lines, renderStatusLine("Warning", statusWarn, msg, colorize))
		}
		lines = append(lines, fmt.Sprintf("%d valid, %d invalid, %d warnings", len(v.Valid), len(v.Invalid), len(v.Warnings)))
	}
	if report.ok() {
		lines = append(lines, "Validation passed")
	}
	return strings.Join(lines, "\n")
}
