package main

import (
	"fmt"
	"os"

	"github.com/fintly/advisor-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Start()

	a.Log.Info("server starting", "port", a.Cfg.Port)
	if err := a.Run(); err != nil {
		a.Log.Error("server failed", "error", err)
	}
}
