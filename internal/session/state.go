// File: internal/session/state.go
package session

import (
	"lingualearn_backend/internal/common"
	"lingualearn_backend/internal/identity"
	"lingualearn_backend/internal/profile"
)

// Phase is the lifecycle state of the process-wide session.
type Phase int

const (
	PhaseUninitialized Phase = iota
	PhaseLoading
	PhaseAuthenticated
	PhaseUnauthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseUninitialized:
		return "uninitialized"
	case PhaseLoading:
		return "loading"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseUnauthenticated:
		return "unauthenticated"
	}
	return "unknown"
}

// MarshalJSON renders the phase as its lowercase name.
func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// Snapshot is a read-only view of the session at one point in time. The
// manager is the sole writer; consumers re-render on each published
// transition and never mutate state directly.
type Snapshot struct {
	Phase    Phase                `json:"phase"`
	Identity *identity.Identity   `json:"identity,omitempty"`
	Profile  *profile.UserProfile `json:"profile,omitempty"`
	Err      *common.APIError     `json:"error,omitempty"`
}

// clone deep-copies the snapshot so listeners never alias manager state.
func (s Snapshot) clone() Snapshot {
	out := s
	if s.Identity != nil {
		ident := *s.Identity
		out.Identity = &ident
	}
	out.Profile = s.Profile.Clone()
	return out
}
