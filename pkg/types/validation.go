package types

import "fmt"

// ValidateIdentity checks the three mandatory handshake fields. Identity is
// supplied by the caller and trusted; only presence is enforced here.
func ValidateIdentity(userID, userName, teamID string) error {
	if userID == "" {
		return fmt.Errorf("%w: userId", ErrMissingIdentity)
	}
	if userName == "" {
		return fmt.Errorf("%w: userName", ErrMissingIdentity)
	}
	if teamID == "" {
		return fmt.Errorf("%w: teamId", ErrMissingIdentity)
	}
	return nil
}

// IsClientType reports whether envType is an envelope type clients are
// allowed to send.
func IsClientType(envType string) bool {
	switch envType {
	case TypeChat, TypeTyping, TypeNoteUpdate, TypeTaskUpdate, TypeCursorMove, TypeGetOnlineUsers:
		return true
	}
	return false
}
