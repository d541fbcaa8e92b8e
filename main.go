package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/jacklau/repolens/cmd"
)

func main() {
	_ = godotenv.Load() // a missing .env is fine

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
