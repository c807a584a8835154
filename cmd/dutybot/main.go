package main

import (
	"errors"
	"log"

	corecmd "github.com/m3rciful/dutybot/core/cmd"
	"github.com/m3rciful/dutybot/internal/bot"
)

var errBadConfig = errors.New("unexpected config carrier type")

func main() {
	err := corecmd.Run(corecmd.Options{
		ConfigEnvVar:      "CONFIG_PATH",
		DefaultConfigPath: "config.yaml",
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			return bot.Load(path)
		},
		Bootstrap: func(cfg corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			appCfg, ok := cfg.(*bot.Config)
			if !ok {
				return nil, errBadConfig
			}
			return bot.NewApp(appCfg)
		},
	})
	if err != nil {
		log.Fatalf("dutybot: %v", err)
	}
}
