package main

import (
	"os"

	"github.com/ssouza/wamd/cmd/wamd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
