package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssouza/wamd/internal/crypto"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or load the keys state and print its identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ks := wireCtx.Keys
			if _, err := wireCtx.PreKeys.TopUp(cmd.Context()); err != nil {
				return err
			}
			if err := ks.Save(); err != nil {
				return err
			}
			fmt.Printf("Keys state %d ready.\nIdentity: %s\n", ks.ID, crypto.Fingerprint(ks.IdentityKeyPair.Pub.Slice()))
			return nil
		},
	}
}
