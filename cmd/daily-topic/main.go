package main

import (
	"github.com/Tedsan/daily-topic/cmd/handlers"
	"github.com/Tedsan/daily-topic/internal/logger"
)

func main() {
	logger.Init(logger.Options{}) // Replaced once the config file is read
	handlers.Execute()
}
