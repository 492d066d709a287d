package main

import (
	"log/slog"
	"os"

	"campusmart/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		slog.Error("campusmart.exit", "err", err)
		os.Exit(1)
	}
}
