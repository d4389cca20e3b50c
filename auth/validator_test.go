package auth

import (
	"pinger/domain"
	"pinger/errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateIdentity(t *testing.T) {
	tests := []struct {
		name     string
		identity domain.Identity
		wantErr  bool
	}{
		{"Valid identity", domain.Identity{Username: "alice", UniqueID: "7f3c2a"}, false},
		{"Unicode username", domain.Identity{Username: "Zoé 🚀", UniqueID: "uid-1"}, false},
		{"Empty username", domain.Identity{Username: "", UniqueID: "uid-1"}, true},
		{"Blank username", domain.Identity{Username: "   ", UniqueID: "uid-1"}, true},
		{"Username too long", domain.Identity{Username: strings.Repeat("a", 65), UniqueID: "uid-1"}, true},
		{"Control character in username", domain.Identity{Username: "al\nice", UniqueID: "uid-1"}, true},
		{"Empty unique id", domain.Identity{Username: "alice", UniqueID: ""}, true},
		{"Unique id with separator", domain.Identity{Username: "alice", UniqueID: "uid:1"}, true},
		{"Unique id with space", domain.Identity{Username: "alice", UniqueID: "uid 1"}, true},
		{"Unique id not ascii", domain.Identity{Username: "alice", UniqueID: "uïd"}, true},
		{"Unique id too long", domain.Identity{Username: "alice", UniqueID: strings.Repeat("x", 129)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			err := ValidateIdentity(tt.identity)
			if tt.wantErr {
				req.ErrorIs(err, errors.ErrInvalidIdentity)
			} else {
				req.NoError(err)
			}
		})
	}
}

func TestValidateTarget(t *testing.T) {
	req := require.New(t)

	err := ValidateTarget(domain.Identity{Username: "bob"})
	req.ErrorIs(err, errors.ErrInvalidTarget)
	req.NoError(ValidateTarget(domain.Identity{Username: "bob", UniqueID: "uid-bob"}))
}
