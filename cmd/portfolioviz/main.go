package main

import (
	"os"

	"github.com/wonny/portfolioviz/cmd/portfolioviz/commands"
)

// main is the entry point for the portfolioviz CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/portfolioviz [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
