package main

import (
	"flag"

	"github.com/fatih/color"

	"mlsvm/internal/commander"
)

func main() {
	noColor := flag.Bool("no-color", false, "Disable coloured output")
	flag.Parse()

	if *noColor {
		color.NoColor = true
	}
	commander.NewCommander().Start()
}
