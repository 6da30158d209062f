package proof

import (
	"os"
	"os/user"
	"runtime"
)

// Machine identifies the host and operator that ran an export.
type Machine struct {
	Hostname string `json:"hostname"`
	Operator string `json:"operator"`
	OS       string `json:"os"`
	Arch     string `json:"arch"`
	CPUs     int    `json:"cpus"`
}

// CurrentMachine describes the running host. Lookups that fail are
// recorded as "unknown".
func CurrentMachine() Machine {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	name := "unknown"
	if u, err := user.Current(); err == nil && u.Username != "" {
		name = u.Username
	} else if env := os.Getenv("USER"); env != "" {
		name = env
	}
	return Machine{
		Hostname: host,
		Operator: name + "@" + host,
		OS:       runtime.GOOS,
		Arch:     runtime.GOARCH,
		CPUs:     runtime.NumCPU(),
	}
}
