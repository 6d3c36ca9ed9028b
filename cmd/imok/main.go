package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/imoklv/imok/internal/command"
)

func main() {
	// Local development convenience; production sets real env vars.
	_ = godotenv.Load()

	if err := command.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "imok:", err)
		os.Exit(1)
	}
}
