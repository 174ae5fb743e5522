package main

import (
	"strings"

	"github.com/rmcolq/charon/internal/config"
)

// scanConfigFlag looks for --config/-config in args ahead of the real
// flag.FlagSet parse: a config file supplies defaults, and any flag
// given alongside it on the command line still wins because the
// FlagSet is built with those defaults and parsed afterward.
func scanConfigFlag(args []string) string {
	for i, a := range args {
		switch {
		case a == "--config" || a == "-config":
			if i+1 < len(args) {
				return args[i+1]
			}
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		case strings.HasPrefix(a, "-config="):
			return strings.TrimPrefix(a, "-config=")
		}
	}
	return ""
}

// loadConfigOverlay decodes path onto dst as TOML or JSON by
// extension, preferring TOML for a site's shared tooling config and
// JSON for machine-generated ones.
func loadConfigOverlay(path string, dst any) error {
	if strings.HasSuffix(strings.ToLower(path), ".toml") {
		return config.LoadTOML(path, dst)
	}
	return config.LoadJSON(path, dst)
}
