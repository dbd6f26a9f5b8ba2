package main

import (
	"os"
)

func main() {
	err := rootCmd.Execute()
	closeService()
	if err != nil {
		reportError(os.Stderr, err, OutputFormat(formatFlag))
		os.Exit(exitCode(err))
	}
}
