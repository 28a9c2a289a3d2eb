package main

import (
	"os"

	"github.com/mindbridge/mindbridge/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
