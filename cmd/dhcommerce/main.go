// Command dhcommerce は学校内フード物々交換マーケットプレイスのバックエンドを起動する。
// サブコマンド: serve（既定）, worker, migrate, healthcheck, admin-token
package main

import (
	"log/slog"
	"os"

	"github.com/hitoshi/dhcommerce/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
