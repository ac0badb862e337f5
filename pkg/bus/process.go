package bus

import (
	"fmt"
	"os"
	goruntime "runtime"
	"time"
)

// ProcessData describes a runtime process.
type ProcessData struct {
	ID              string `json:"id"`
	PID             int    `json:"pid"`
	Hostname        string `json:"hostname"`
	Platform        string `json:"platform"`
	PlatformVersion string `json:"platformVersion"`
	StartTime       int64  `json:"startTime"`
}

// Key returns pid@hostname.
func (p ProcessData) Key() string {
	return fmt.Sprintf("%d@%s", p.PID, p.Hostname)
}

// HostData describes a machine running one or more runtimes.
type HostData struct {
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Arch     string `json:"arch"`
	CPUs     int    `json:"cpus"`
}

// LocalProcess describes the current process as runtime id.
func LocalProcess(id string) ProcessData {
	hostname, _ := os.Hostname()
	return ProcessData{
		ID:              id,
		PID:             os.Getpid(),
		Hostname:        hostname,
		Platform:        goruntime.GOOS,
		PlatformVersion: goruntime.Version(),
		StartTime:       time.Now().UnixMilli(),
	}
}

// LocalHost describes the current machine.
func LocalHost() HostData {
	hostname, _ := os.Hostname()
	return HostData{
		Hostname: hostname,
		Platform: goruntime.GOOS,
		Arch:     goruntime.GOARCH,
		CPUs:     goruntime.NumCPU(),
	}
}

// RegisterProcess records a process descriptor and returns its key.
func (rt *Runtime) RegisterProcess(p ProcessData) string {
	key := p.Key()
	rt.inventoryMu.Lock()
	rt.processes[key] = p
	rt.inventoryMu.Unlock()
	return key
}

// RegisterHost records a host descriptor.
func (rt *Runtime) RegisterHost(h HostData) {
	rt.inventoryMu.Lock()
	rt.hosts[h.Hostname] = h
	rt.inventoryMu.Unlock()
}

// Processes returns the known processes keyed by pid@hostname.
func (rt *Runtime) Processes() map[string]ProcessData {
	rt.inventoryMu.RLock()
	defer rt.inventoryMu.RUnlock()
	out := make(map[string]ProcessData, len(rt.processes))
	for k, v := range rt.processes {
		out[k] = v
	}
	return out
}

// Hosts returns the known hosts keyed by hostname.
func (rt *Runtime) Hosts() map[string]HostData {
	rt.inventoryMu.RLock()
	defer rt.inventoryMu.RUnlock()
	out := make(map[string]HostData, len(rt.hosts))
	for k, v := range rt.hosts {
		out[k] = v
	}
	return out
}
