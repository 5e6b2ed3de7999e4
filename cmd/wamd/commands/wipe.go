package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func wipeCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete the keys state from this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				if err := wireCtx.Prefs.DeleteAll(); err != nil {
					return err
				}
				fmt.Println("All keys states deleted.")
				return nil
			}
			if err := wireCtx.Keys.Delete(); err != nil {
				return err
			}
			fmt.Printf("Keys state %d deleted.\n", wireCtx.Keys.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every keys state under the preferences root")
	return cmd
}
