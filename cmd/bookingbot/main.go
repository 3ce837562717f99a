package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/m3rciful/bookingbot/booking/bot"
	corecmd "github.com/m3rciful/bookingbot/core/cmd"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig:        bot.LoadConfig,
		Bootstrap:         bot.Bootstrap,
	})
	if err != nil {
		log.Fatal(err)
	}
}
