// Package domain contains core concepts of the pinger system.
// No runtime, network, or storage logic should be added here.
package domain

import "fmt"

// Identity is the (username, unique id) pair a client claims to be.
// UniqueID is the uniqueness key, Username is only a display label.
type Identity struct {
	Username string `json:"username"`
	UniqueID string `json:"unique_id"`
}

// Key returns the value identities are indexed by.
func (i Identity) Key() string {
	return i.UniqueID
}

// Same reports whether both identities designate the same peer.
func (i Identity) Same(other Identity) bool {
	return i.UniqueID == other.UniqueID
}

func (i Identity) String() string {
	return fmt.Sprintf("%s#%s", i.Username, i.UniqueID)
}
