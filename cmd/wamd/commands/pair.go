package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair",
		Short: "Start the companion pairing handshake",
		RunE: func(cmd *cobra.Command, args []string) error {
			if wireCtx.Keys.HasCompanion() {
				fmt.Printf("Already paired with %s.\n", wireCtx.Keys.Companion)
				return nil
			}
			ref, err := wireCtx.Pairing.Advertise(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Advertisement ref: %s\nScan from the primary device to continue.\n", ref)
			return nil
		},
	}
}
