package main

import (
	"os"

	"github.com/lodestone-kg/lodestone/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
