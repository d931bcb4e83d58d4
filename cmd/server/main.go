package main

import (
	"context"
	"log"

	"github.com/tickrify1/tickrify.com-sub000/app"
	"github.com/tickrify1/tickrify.com-sub000/app/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	srv, err := app.Bootstrap(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to bootstrap server: %v", err)
	}
	defer srv.Close()

	if err := srv.Start(); err != nil {
		log.Fatalf("failed to start housekeeping: %v", err)
	}

	router, err := app.NewRouter(srv)
	if err != nil {
		log.Fatalf("failed to initialize router: %v", err)
	}
	log.Printf("level=info component=server msg=\"listening\" port=%s", cfg.Port)
	if err := router.Run("0.0.0.0:" + cfg.Port); err != nil {
		log.Printf("server stopped: %v", err)
	}
}
