package main

import (
	"os"

	"github.com/vadiminshakov/exgate/cmd/exgate/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
