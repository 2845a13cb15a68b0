package main

import (
	"os"

	"github.com/justmike1/intern/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
