package main

import (
	"flag"

	"github.com/vesperino/portalforge-backend/internal/app"
)

func main() {
	cfgPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Initialize application
	application, err := app.Initialize(*cfgPath)
	if err != nil {
		panic(err)
	}

	// Start server
	app.StartServer(
		application.Config,
		application.Handlers,
		application.Services,
	)
}
