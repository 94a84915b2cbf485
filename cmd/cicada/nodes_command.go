package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newNodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "nodes",
		Short:       "List the nodes this build exposes to graph hosts",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			specs := newRegistry().List()
			rows := make([][]string, 0, len(specs))
			for _, spec := range specs {
				inputs := make([]string, 0, len(spec.Inputs))
				for _, p := range spec.Inputs {
					inputs = append(inputs, p.Name)
				}
				outputs := make([]string, 0, len(spec.Outputs))
				for _, o := range spec.Outputs {
					outputs = append(outputs, o.Name)
				}
				kind := "value"
				if spec.Terminal {
					kind = "terminal"
				}
				rows = append(rows, []string{
					spec.Name,
					spec.DisplayName,
					kind,
					strings.Join(inputs, ", "),
					strings.Join(outputs, ", "),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Name", "Display name", "Kind", "Inputs", "Outputs"}, rows))
			return nil
		},
	}
}
