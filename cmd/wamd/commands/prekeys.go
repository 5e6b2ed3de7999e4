package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func prekeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prekeys",
		Short: "Top the one-time pre-key pool up and show its size",
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := wireCtx.PreKeys.TopUp(cmd.Context())
			if err != nil {
				return err
			}
			if err := wireCtx.Keys.Save(); err != nil {
				return err
			}
			fmt.Printf("Generated %d pre-keys, pool holds %d.\n", len(created), wireCtx.Keys.PreKeyCount())
			return nil
		},
	}
}
