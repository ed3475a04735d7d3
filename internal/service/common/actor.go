//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"
)

// Actor identifies who started a run. It is written into the run marker and
// attached to the run log.
type Actor struct {
	Hostname string `yaml:"hostname"`
	Username string `yaml:"username"`
	PID      int    `yaml:"pid"`
}

// DetectActor gathers host, user and process information.
func DetectActor() (*Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &Actor{
		Hostname: hostname,
		Username: currentUser.Username,
		PID:      os.Getpid(),
	}, nil
}

// String renders user@host.
func (a *Actor) String() string {
	return a.Username + "@" + a.Hostname
}
