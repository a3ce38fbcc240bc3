package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/lehigh-university-libraries/imagechat/internal/transcript"
	"github.com/spf13/cobra"
)

func newAskCmd() *cobra.Command {
	var imagePaths []string
	var selectKey string
	var transcriptPath string
	var flags modelFlags

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Ask one question about one or more local images",
		Long: `Runs a single chat turn from the command line.

Every --image is ingested in order and the last one becomes active unless
--select names another. The assistant reply is printed to stdout; model
failures are printed as the degraded reply instead of failing the command.`,
		Example: `  # Describe a photo with Gemini
  imagechat ask --image cat.png "What breed is this cat?"

  # Compare against a specific image and keep the transcript
  imagechat ask --image a.jpg --image b.webp --select a.jpg --transcript out.yaml "What is in the corner?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := flags.service()
			if err != nil {
				return err
			}
			store := flags.storeFactory(svc)()
			ctx := cmd.Context()

			for _, p := range imagePaths {
				data, err := os.ReadFile(p)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				if _, err := store.IngestImage(ctx, filepath.Base(p), data); err != nil {
					return err
				}
			}

			if selectKey != "" {
				if err := store.SelectImage(selectKey); err != nil {
					return err
				}
			}

			_, reply, err := store.RecordExchange(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply.Content)

			if transcriptPath != "" {
				return writeTranscriptFile(transcriptPath, "", transcript.Build(uuid.NewString(), store))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&imagePaths, "image", nil, "Image to upload (PNG, JPEG or WEBP); repeatable")
	cmd.Flags().StringVar(&selectKey, "select", "", "Image filename to make active instead of the last upload")
	cmd.Flags().StringVar(&transcriptPath, "transcript", "", "Write the session transcript to this file (.json, .yaml or .parquet)")
	flags.bind(cmd)

	return cmd
}

// writeTranscriptFile writes t to path; an empty format is taken from the extension
func writeTranscriptFile(path, format string, t *transcript.Transcript) error {
	if format == "" {
		format = filepath.Ext(path)
	}
	f, err := transcript.ParseFormat(format)
	if err != nil {
		return err
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create transcript file: %w", err)
	}
	defer out.Close()

	if err := transcript.Write(out, t, f); err != nil {
		return err
	}

	absPath, _ := filepath.Abs(path)
	fmt.Fprintf(os.Stderr, "\n✅ Transcript saved to: %s\n", absPath)
	return out.Close()
}
