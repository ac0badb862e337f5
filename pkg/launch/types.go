// Package launch loads launch descriptions: the services a runtime starts
// at boot, with their config and the listeners wired between them.
package launch

import (
	"fmt"

	"github.com/morezero/servicebus/pkg/semver"
)

// Listener is a subscription target: Method of service Name.
type Listener struct {
	Name   string `json:"name"`
	Method string `json:"method"`
}

// Action starts one service.
type Action struct {
	// Package reference, "typeKey" or "typeKey@range"
	Package string `json:"package"`
	// Service name; a bare name is qualified with the local runtime id
	Name string `json:"name"`
	// Config applied before the service starts
	Config map[string]any `json:"config,omitempty"`
	// Listeners keyed by the method of this service they subscribe to
	Listeners map[string][]Listener `json:"listeners,omitempty"`
}

// Description is a launch file.
type Description struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Actions     []Action `json:"actions"`
}

// Validate checks every action has a name and a well-formed package.
func (d *Description) Validate() error {
	seen := make(map[string]bool, len(d.Actions))
	for i, a := range d.Actions {
		if a.Name == "" {
			return fmt.Errorf("%s - action %d has no name", logPrefix, i)
		}
		if seen[a.Name] {
			return fmt.Errorf("%s - duplicate action name %q", logPrefix, a.Name)
		}
		seen[a.Name] = true
		if _, err := semver.ParsePackageRef(a.Package); err != nil {
			return fmt.Errorf("%s - action %q: %w", logPrefix, a.Name, err)
		}
		for method, ls := range a.Listeners {
			for _, l := range ls {
				if l.Name == "" {
					return fmt.Errorf("%s - action %q: listener on %s has no name", logPrefix, a.Name, method)
				}
			}
		}
	}
	return nil
}
