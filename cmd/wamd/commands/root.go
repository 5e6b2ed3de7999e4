package commands

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ssouza/wamd/internal/app"
)

var (
	home       string
	passphrase string
	keysID     uint32
	wireCtx    *app.Wire
)

// Execute runs the CLI.
func Execute() error {
	root := &cobra.Command{
		Use:   "wamd",
		Short: "Multi-device messenger session layer",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				base, err := os.UserConfigDir()
				if err != nil {
					return err
				}
				home = filepath.Join(base, "wamd")
			}
			w, err := app.NewWire(app.Config{
				Home:       home,
				Passphrase: passphrase,
				ID:         keysID,
			}, nil)
			if err != nil {
				return err
			}
			wireCtx = w
			return nil
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "preferences root (default <user config dir>/wamd)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase sealing the keys state at rest")
	root.PersistentFlags().Uint32Var(&keysID, "id", 0, "registration id of the keys state")

	root.AddCommand(initCmd(), fingerprintCmd(), prekeysCmd(), pairCmd(), wipeCmd())
	return root.Execute()
}
