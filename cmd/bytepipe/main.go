package main

import (
	"os"

	"github.com/kbukum/bytepipe/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
