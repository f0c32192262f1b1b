// Package conversation holds the chat history exchanged with the model.
package conversation

import (
	"fmt"
)

// Role identifies who authored a message. There are exactly two roles;
// the zero value is invalid.
type Role uint8

const (
	RoleUser Role = iota + 1
	RoleAI
)

func (r Role) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAI:
		return "ai"
	default:
		return fmt.Sprintf("Role(%d)", uint8(r))
	}
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAI
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts "user"/"human" and "ai"/"assistant" so histories
// written by older builds still load.
func (r *Role) UnmarshalText(b []byte) error {
	switch string(b) {
	case "user", "human":
		*r = RoleUser
	case "ai", "assistant":
		*r = RoleAI
	default:
		return fmt.Errorf("unknown role %q", string(b))
	}
	return nil
}

// Message is one entry of the conversation. TokenLength is the content's
// token count, fixed when the message enters a Store.
type Message struct {
	Role        Role   `json:"role"`
	Content     string `json:"content"`
	TokenLength int    `json:"tokenLength"`
}
