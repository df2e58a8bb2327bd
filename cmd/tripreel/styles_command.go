package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tripreel/pkg/tiles"
)

func newStylesCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "styles",
		Short:       "List the supported map styles",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			rows := make([][]string, 0, len(tiles.Styles()))
			for _, st := range tiles.Styles() {
				name := string(st)
				if st == tiles.DefaultStyle {
					name += " (default)"
				}
				rows = append(rows, []string{name, st.Ext(), strconv.Itoa(st.MaxZoom()), yesNo(st.Retina())})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Style", "Format", "Max zoom", "Retina"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			return err
		},
	}
}
