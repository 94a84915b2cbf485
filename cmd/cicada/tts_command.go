package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cicada/internal/node"
	"cicada/internal/voiceclone"
)

func newTTSCommand(ctx *commandContext) *cobra.Command {
	var (
		audioPath string
		text      string
		textFile  string
		model     string
		speed     float64
		pitch     float64
		noCache   bool
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "tts",
		Short: "Clone a voice from reference audio and synthesize speech with it",
		RunE: func(cmd *cobra.Command, args []string) error {
			n := voiceclone.New()
			spec := n.Spec()
			if err := checkEnumFlag(spec, "model_type", "model", model); err != nil {
				return err
			}
			if textFile != "" {
				data, err := os.ReadFile(textFile)
				if err != nil {
					return fmt.Errorf("read text file: %w", err)
				}
				text = string(data)
			}

			env, err := ctx.ensureEnv()
			if err != nil {
				return err
			}
			if err := applyOutputDir(env, outputDir); err != nil {
				return err
			}

			in := node.NewInputs(spec, map[string]any{
				"audio":      audioPath,
				"text":       text,
				"model_type": model,
				"speed":      speed,
				"pitch":      pitch,
				"use_cache":  !noCache,
			})

			result, err := n.Execute(cmd.Context(), env, in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch v := result.Values[0].(type) {
			case string:
				fmt.Fprintf(out, "Saved audio to %s\n", v)
			case *node.AudioBuffer:
				fmt.Fprintf(out, "Synthesized %s of audio at %d Hz into %s\n",
					v.Duration().Round(time.Millisecond), v.SampleRate, env.Output())
			}
			fmt.Fprintf(out, "Result URL: %s\n", result.Values[1])
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&audioPath, "audio", "", "Reference audio file to clone the voice from")
	flags.StringVar(&text, "text", "", "Text to synthesize")
	flags.StringVar(&textFile, "text-file", "", "File containing the text to synthesize")
	flags.StringVar(&model, "model", voiceclone.ModelTurbo, "Clone model (cicada3.0-turbo, cicada3.0, cicada1.0)")
	flags.Float64Var(&speed, "speed", 1.0, "Speech rate multiplier (0.5 to 2.0)")
	flags.Float64Var(&pitch, "pitch", 1.0, "Pitch multiplier (0.1 to 3.0)")
	flags.BoolVar(&noCache, "no-cache", false, "Clone a fresh voice even when the reference audio was cloned before")
	flags.StringVar(&outputDir, "output", "", "Directory for downloaded results")
	_ = cmd.MarkFlagRequired("audio")
	cmd.MarkFlagsOneRequired("text", "text-file")
	cmd.MarkFlagsMutuallyExclusive("text", "text-file")

	return cmd
}
