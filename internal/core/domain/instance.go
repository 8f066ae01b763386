package domain

// StateRunning is the runtime state reported for a live instance.
const StateRunning = "running"

// Instance represents the container occupying the reserved instance slot.
type Instance struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Image  string `json:"image"`
	Status string `json:"status"`
	State  string `json:"state"` // running, exited, created, etc.
}

// Running reports whether the instance is currently live.
func (i *Instance) Running() bool {
	return i != nil && i.State == StateRunning
}

// Bind describes a single host-path to container-path bind mount.
type Bind struct {
	HostPath      string
	ContainerPath string
	ReadOnly      bool
}

// InstanceSpec is everything the container runtime needs to start a new
// generation in the instance slot. The reserved name travels here explicitly
// so no adapter has to know it ahead of time.
type InstanceSpec struct {
	Name  string
	Image string
	// Port is published host-side and exposed container-side with the same
	// number; the served application listens on it directly.
	Port  int
	Env   []string
	Binds []Bind
}
