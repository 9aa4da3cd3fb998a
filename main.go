package main

import (
	"os"

	"github.com/docsentry/docsentry/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
