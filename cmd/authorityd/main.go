package main

import (
	"os"

	"go.uber.org/zap"

	"github.com/clustermesh/authority/app"
	_ "github.com/clustermesh/authority/extensions" // triggers extension registration via blank imports
)

func main() {
	if err := app.RootCmd().Execute(); err != nil {
		zap.L().Fatal("Failed to execute root command", zap.Error(err))
	}
	os.Exit(0)
}

func init() {
	zap.ReplaceGlobals(zap.Must(zap.NewProduction()))
}
