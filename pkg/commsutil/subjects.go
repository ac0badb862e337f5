package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectPrefix       = "bus.runtime"
	SubjectStateChanged = "bus.state"
)

// BuildInboxSubject builds the subject a runtime listens on for
// fire-and-forget frames.
func BuildInboxSubject(runtimeID string) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, safeToken(runtimeID))
}

// BuildCallSubject builds the request/reply subject of a runtime.
func BuildCallSubject(runtimeID string) string {
	return BuildInboxSubject(runtimeID) + ".call"
}

// BuildStateSubject builds the granular state event subject of a runtime.
func BuildStateSubject(runtimeID string) string {
	return fmt.Sprintf("%s.%s", SubjectStateChanged, safeToken(runtimeID))
}

// safeToken keeps an id within one subject token.
func safeToken(id string) string {
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(id)
}
