package main

import (
	"log"

	"github.com/tabreaper/tabreaper/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ tabreaper failed to start: %v", err)
	}
}
