package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"cicada/internal/voicecache"
)

func newVoicesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices",
		Short: "Manage the voice clone cache",
	}
	cmd.AddCommand(newVoicesListCommand(ctx))
	cmd.AddCommand(newVoicesRemoveCommand(ctx))
	cmd.AddCommand(newVoicesClearCommand(ctx))
	return cmd
}

func newVoicesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached voice clones",
		RunE: func(cmd *cobra.Command, args []string) error {
			voices, err := requireVoiceCache(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			items := voices.List()
			if len(items) == 0 {
				fmt.Fprintln(out, "Voice cache is empty.")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				hash := strings.TrimSuffix(item.Key, "_"+item.ModelType)
				created := time.Unix(int64(item.CreatedAt), 0)
				rows = append(rows, []string{hash, item.ModelType, item.VoiceID, humanize.Time(created)})
			}
			fmt.Fprintln(out, renderTable([]string{"Audio hash", "Model", "Voice ID", "Created"}, rows))
			return nil
		},
	}
}

func newVoicesRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove HASH MODEL",
		Short: "Remove one cached voice clone",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			voices, err := requireVoiceCache(ctx)
			if err != nil {
				return err
			}
			if err := voices.Remove(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed voice cache entry %s\n", voicecache.Key(args[0], args[1]))
			return nil
		},
	}
}

func newVoicesClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached voice clone",
		RunE: func(cmd *cobra.Command, args []string) error {
			voices, err := requireVoiceCache(ctx)
			if err != nil {
				return err
			}
			count := voices.Count()
			if err := voices.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d voice cache entries.\n", count)
			return nil
		},
	}
}

func requireVoiceCache(ctx *commandContext) (*voicecache.Cache, error) {
	env, err := ctx.ensureEnv()
	if err != nil {
		return nil, err
	}
	if env.Voices == nil {
		return nil, errors.New("voice cache is disabled in the configuration")
	}
	return env.Voices, nil
}
