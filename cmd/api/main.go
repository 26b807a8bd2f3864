package main

import (
	"log"

	"github.com/ZGRSRL/mergenlite-sub000/internal/bootstrap"
	"github.com/ZGRSRL/mergenlite-sub000/internal/config"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/server"
)

func main() {
	cfg := config.Load()

	app, err := bootstrap.Build(cfg)
	if err != nil {
		log.Fatalf("bootstrap build: %v", err)
	}
	defer app.Close()

	addr := server.Addr(cfg.Port)
	log.Printf("Starting API server on %s", addr)

	if err := app.Router.Run(addr); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
