package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/alertbench/api/schemas"
)

// newBrowsersCmd creates the `browsers` command.
func newBrowsersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "browsers",
		Short: "Lists the simulated browser versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TAG\tFAMILY\tNICKNAME\tUSER AGENT")
			for _, b := range schemas.KnownBrowsers() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", b.Tag, b.Family, b.Nickname, b.UserAgent)
			}
			for _, t := range schemas.KnownTags() {
				if !t.IsFamily() || t == schemas.CHROME || t == schemas.EDGE {
					continue
				}
				if b, ok := schemas.LookupBrowser(t); ok {
					fmt.Fprintf(tw, "%s\t%s\t-> %s\t\n", t, t, b.Tag)
				}
			}
			return tw.Flush()
		},
	}
}
