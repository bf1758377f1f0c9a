package main

import (
	"github.com/charmbracelet/log"

	"github.com/Binz120/OpenBullet2/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal("application terminated", "error", err)
	}
}
