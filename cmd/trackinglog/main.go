// Package main is the entry point for the trackinglog command.
package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/kart-io/trackinglog/internal/sweeper"
)

func main() {
	sweeper.NewApp().Run()
}
