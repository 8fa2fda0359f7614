package config

import (
	"fmt"
	"os"
)

func Template() string {
	return daemonTemplate
}

func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(daemonTemplate), 0o600)
}

const daemonTemplate = `name = "buslinkd"
endpoint = "localhost:10000"
admin_addr = ":9600"
cors_origins = ["http://localhost:3000"]

[link]
connect_timeout_ms = 5000
write_timeout_ms = 10000
poll_interval_ms = 50
keepalive_ms = 5000
backoff_initial_ms = 250
backoff_max_ms = 5000
backoff_multiplier = 2.0

[bridge]
topics = ["chatter"]
services = []
`
