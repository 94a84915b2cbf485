package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cicada/internal/lipsync"
	"cicada/internal/node"
)

func newLipSyncCommand(ctx *commandContext) *cobra.Command {
	var (
		videoPath string
		audioPath string
		model     string
		backway   bool
		driveMode string
		download  bool
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "lipsync",
		Short: "Render a lip-synced video from a source video and driving audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			n := lipsync.New()
			spec := n.Spec()
			if err := checkEnumFlag(spec, "model", "model", model); err != nil {
				return err
			}
			if err := checkEnumFlag(spec, "drive_mode", "drive-mode", driveMode); err != nil {
				return err
			}

			env, err := ctx.ensureEnv()
			if err != nil {
				return err
			}
			if err := applyOutputDir(env, outputDir); err != nil {
				return err
			}

			playback := lipsync.BackwayForward
			if backway {
				playback = lipsync.BackwayReverse
			}
			in := node.NewInputs(spec, map[string]any{
				"video":      videoPath,
				"audio":      audioPath,
				"model":      model,
				"backway":    playback,
				"drive_mode": driveMode,
			})

			result, err := n.Execute(cmd.Context(), env, in)
			if err != nil {
				return err
			}

			url, _ := result.Values[0].(string)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rendered video: %s\n", url)

			if download {
				path, err := env.Client.Download(cmd.Context(), url, env.Output(), "cicada_video", ".mp4", nil)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Saved to %s\n", path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&videoPath, "video", "", "Source video file")
	flags.StringVar(&audioPath, "audio", "", "Driving audio file")
	flags.StringVar(&model, "model", lipsync.ModelPro, "Render model (cicada-lip-sync, cicada-lip-sync-pro)")
	flags.BoolVar(&backway, "backway", false, "Loop the video in reverse when it is shorter than the audio")
	flags.StringVar(&driveMode, "drive-mode", lipsync.DriveNormal, "Starting frame strategy (normal, random)")
	flags.BoolVar(&download, "download", false, "Download the rendered video into the output directory")
	flags.StringVar(&outputDir, "output", "", "Directory for downloaded results")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("audio")

	return cmd
}
