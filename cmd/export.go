package cmd

import (
	"github.com/lehigh-university-libraries/imagechat/internal/transcript"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var input string
	var output string
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert a transcript between JSON, YAML and Parquet",
		Long: `Converts a transcript downloaded from /api/sessions/{id}/transcript (or
written by "imagechat ask --transcript x.json") into another format.

Parquet output holds one row per message for loading into analytics tools.
A Parquet file can be read back with --in; it carries messages only, so
image summaries are empty after the round trip.`,
		Example: `  imagechat export --in transcript.json --out transcript.parquet
  imagechat export --in transcript.json --out - --format yaml
  imagechat export --in transcript.parquet --out transcript.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := transcript.ReadFile(input)
			if err != nil {
				return err
			}

			if output == "-" {
				f, err := transcript.ParseFormat(format)
				if err != nil {
					return err
				}
				return transcript.Write(cmd.OutOrStdout(), t, f)
			}
			return writeTranscriptFile(output, format, t)
		},
	}

	cmd.Flags().StringVar(&input, "in", "", "JSON or Parquet transcript to read, by extension (required)")
	cmd.Flags().StringVar(&output, "out", "", "File to write, or - for stdout (required)")
	cmd.Flags().StringVar(&format, "format", "", "Output format (json, yaml, parquet); defaults to the --out extension")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}
