package main

import (
	"os"

	"github.com/bleepstore/bleepstore/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
