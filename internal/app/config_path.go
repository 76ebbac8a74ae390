package app

import "os"

// ConfigPath is HERALD_CONFIG when set, otherwise ./config/<service>.yaml. A missing file
// is fine: defaults and env still apply.
func ConfigPath(service string) string {
	if p := os.Getenv("HERALD_CONFIG"); p != "" {
		return p
	}
	return "./config/" + service + ".yaml"
}
