package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"funnel_backend/internals/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("funnel exited with error")
		os.Exit(1)
	}
}
