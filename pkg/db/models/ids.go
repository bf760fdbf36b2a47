package models

import "github.com/google/uuid"

// ensureID assigns a v4 id when the caller left it unset. Ids are generated in
// Go so rows can be referenced before insert and sqlite needs no extension.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
