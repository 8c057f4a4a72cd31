package main

import (
	"os"

	"github.com/civicsignal/civicsignal/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
