// Package idutil centralizes identifier generation so every package that
// needs a fresh id (engine instance uuid, aggregate identity-index record
// id) shares one
// implementation and one dependency.
package idutil

import "github.com/google/uuid"

// UUID returns a new random (v4) uuid in canonical string form.
func UUID() string {
	return uuid.NewString()
}
