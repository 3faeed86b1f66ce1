package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// LLM provider.
	viper.SetDefault("endpoint", "https://api.openai.com")
	viper.SetDefault("model", "gpt-4o-mini")
	viper.SetDefault("api_key", "")
	viper.SetDefault("llm.request_timeout", 90*time.Second)

	// Routing defaults.
	viper.SetDefault("default_account_email", "")
	viper.SetDefault("calendly.default_key", "default")
	viper.SetDefault("local_tz", "Europe/London")
	viper.SetDefault("dry_run", false)
	viper.SetDefault("signature", "")
	viper.SetDefault("tokens_dir", "tokens")
	viper.SetDefault("download_dir", "downloads")

	// HTTP server.
	viper.SetDefault("server.bind", "127.0.0.1")
	viper.SetDefault("server.port", 8787)
	viper.SetDefault("server.auth_token", "")

	// Logging.
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
