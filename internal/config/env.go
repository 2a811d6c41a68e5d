package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds settings that may come from the environment when the matching
// flag is left at its default.
type Env struct {
	Port    int    `env:"PORT"`
	Bind    string `env:"BIND"`
	DBPath  string `env:"DB_PATH" envDefault:"./notebox.db"`
	LogPath string `env:"LOG_PATH"`
	Dev     bool   `env:"NOTEBOX_DEV"`
}

// ParseEnv loads configuration from environment variables. A .env file in
// the working directory is read first when present; variables already set
// in the process win.
func ParseEnv(files ...string) (Env, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Env{}, fmt.Errorf("load env file: %w", err)
	}

	var cfg Env
	if err := env.Parse(&cfg); err != nil {
		return Env{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
