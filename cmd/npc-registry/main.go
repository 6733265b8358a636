package main

import (
	"context"
	"fmt"
	"os"

	commands "github.com/lewisedginton/npc_registry/internal/cli"
)

func main() {
	app := commands.NewApp()

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
