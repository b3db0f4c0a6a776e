package main

import (
	"fmt"
	"os"

	"github.com/youpoison/YM-Logs-API/cmd/ym-logs/commands"
	"github.com/youpoison/YM-Logs-API/internal/pipeline"
)

func main() {
	err := commands.Execute(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(pipeline.ExitCode(err))
}
