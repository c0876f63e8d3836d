package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

// Config holds project-level build settings read from vela.toml. Command
// line flags override whatever the file sets; every field is optional.
type Config struct {
	Target string `toml:"target"`
	Opt    int    `toml:"opt"`
	CC     string `toml:"cc"`
	Nasm   string `toml:"nasm"`
}

const configFile = "vela.toml"

func defaultConfig() Config {
	return Config{
		Target: hostTarget(),
		Opt:    2,
		CC:     "cc",
		Nasm:   "nasm",
	}
}

// loadConfig merges vela.toml from the working directory over the
// defaults. A missing file is not an error; a malformed one is.
func loadConfig() (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read %s: %w", configFile, err)
	}

	var file Config
	if err := toml.Unmarshal(data, &file); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", configFile, err)
	}
	if file.Target != "" {
		cfg.Target = file.Target
	}
	if file.Opt != 0 {
		cfg.Opt = file.Opt
	}
	if file.CC != "" {
		cfg.CC = file.CC
	}
	if file.Nasm != "" {
		cfg.Nasm = file.Nasm
	}
	return cfg, nil
}
