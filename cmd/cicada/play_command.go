package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"cicada/internal/node"
	"cicada/internal/player"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play URL",
		Short: "Fetch a rendered result URL or local file and report the playable video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := ctx.ensureEnv()
			if err != nil {
				return err
			}

			n := player.New()
			in := node.NewInputs(n.Spec(), map[string]any{"video_url": args[0]})
			result, err := n.Execute(cmd.Context(), env, in)
			if err != nil {
				return err
			}

			if result.UI == nil {
				return nil
			}
			out := cmd.OutOrStdout()
			for _, view := range result.UI.Videos {
				fmt.Fprintf(out, "Playable video: %s\n", viewPath(env.Output(), view))
			}
			return nil
		},
	}
	return cmd
}

// viewPath rebuilds the on-disk location from a video view, whose
// subfolder is relative to the output directory unless the file lives
// outside it.
func viewPath(outputDir string, view node.VideoView) string {
	switch {
	case view.Subfolder == "":
		return filepath.Join(outputDir, view.Filename)
	case filepath.IsAbs(view.Subfolder):
		return filepath.Join(view.Subfolder, view.Filename)
	default:
		return filepath.Join(outputDir, view.Subfolder, view.Filename)
	}
}
