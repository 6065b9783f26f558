package config

import (
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker reports whether the process runs in a container, based
// on /.dockerenv. ASKDB_IN_DOCKER=true|false overrides detection. The file
// check is cached after the first call.
func IsRunningInDocker() bool {
	switch os.Getenv("ASKDB_IN_DOCKER") {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps loopback database hosts to host.docker.internal
// when running in a container, so a database on the host stays reachable.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}

	switch host {
	case "localhost", "127.0.0.1", "::1":
		return "host.docker.internal"
	}
	return host
}
