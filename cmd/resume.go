package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	resumeID     string
	resumeChoice string
	resumeSet    map[string]string
	resumeOutput string
)

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Answer a pending confirmation",
	Example: `  worklog resume --id 3f1c... --choice 2
  worklog resume --id 3f1c... --choice manual_input --set field_name="Greenhouse 1" --set work_date=2026-10-15`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx, "pipeline")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Service.Resume(ctx, resumeID, resumeChoice, resumeSet)
		if err != nil {
			return eris.Wrapf(err, "resume confirmation %s", resumeID)
		}
		return writeResult(cmd.OutOrStdout(), resumeOutput, res)
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeID, "id", "", "confirmation id (required)")
	resumeCmd.Flags().StringVar(&resumeChoice, "choice", "", "option id or action name (required)")
	resumeCmd.Flags().StringToStringVar(&resumeSet, "set", nil, "corrected value as key=value, repeatable")
	resumeCmd.Flags().StringVarP(&resumeOutput, "output", "o", "json", "output format: json or yaml")
	_ = resumeCmd.MarkFlagRequired("id")
	_ = resumeCmd.MarkFlagRequired("choice")
	rootCmd.AddCommand(resumeCmd)
}
