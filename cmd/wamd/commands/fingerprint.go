package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ssouza/wamd/internal/crypto"
)

func fingerprintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint",
		Short: "Print the identity key fingerprint",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Fingerprint: %s\n", crypto.Fingerprint(wireCtx.Keys.IdentityKeyPair.Pub.Slice()))
			return nil
		},
	}
}
