package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	submitSubmitter string
	submitOutput    string
)

var submitCmd = &cobra.Command{
	Use:   "submit MESSAGE...",
	Short: "Register a free-text work report",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.SubmitWorkReport(ctx, strings.Join(args, " "), submitSubmitter)
		if err != nil {
			return eris.Wrap(err, "submit work report")
		}
		return writeResult(cmd.OutOrStdout(), submitOutput, res)
	},
}

// writeResult encodes v as json or yaml.
func writeResult(w io.Writer, format string, v any) error {
	switch format {
	case "", "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(v), "encode json")
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return eris.Wrap(err, "encode yaml")
		}
		return eris.Wrap(enc.Close(), "encode yaml")
	default:
		return eris.Errorf("unsupported output format: %s", format)
	}
}

func init() {
	submitCmd.Flags().StringVar(&submitSubmitter, "submitter", "", "submitter id (required)")
	submitCmd.Flags().StringVarP(&submitOutput, "output", "o", "json", "output format: json or yaml")
	_ = submitCmd.MarkFlagRequired("submitter")
	rootCmd.AddCommand(submitCmd)
}
