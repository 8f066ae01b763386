package main

import (
	"os"

	"github.com/zwg/restage/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
