package utils

import "github.com/gofrs/uuid"

// NewBootID identifies this boot in the logs of every session.
func NewBootID() uuid.UUID {
	id, err := uuid.NewV4()
	if err != nil {
		Log.Warn().Err(err).Msg("generating boot id")
		return uuid.Nil
	}
	return id
}

// SessionID is stable for a given boot and tenant name.
func SessionID(boot uuid.UUID, name string) uuid.UUID {
	return uuid.NewV5(boot, name)
}
