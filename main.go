package main

import (
	"github.com/jennahamlin/mashwrapper/cmd"
	"github.com/jennahamlin/mashwrapper/logger"
	"github.com/joho/godotenv"

	"go.uber.org/zap/zapcore"
)

func main() {
	if err := logger.Init(zapcore.InfoLevel); err != nil {
		panic(err)
	}
	defer logger.Sync()

	// local overrides for tool paths and settings
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env found, using the local environment")
	}

	cmd.Execute()
}
