package main

import (
	"os"

	_ "stack-keeper/cmd"
	"stack-keeper/cmd/root"
	"stack-keeper/internal/config"
	"stack-keeper/internal/logger"
)

func main() {
	// Server mode tees logs to stdout in addition to the log file.
	isServerMode := len(os.Args) > 1 && os.Args[1] == "server"

	logger.InitLogger(config.Config.Log.Path, config.Config.Log.Level, isServerMode)

	if err := root.RootCmd.Execute(); err != nil {
		logger.Fatal(err)
	}
	os.Exit(0)
}
