// Package main provides the entry point for the soberano CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/soberano/soberano/cmd/soberano/cmd"
)

func main() {
	// A .env in the working directory can carry SOBERANO_* overrides.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
