package main

import (
	"fmt"

	"github.com/npezzotti/studychat/internal/api"
)

// explain adds a hint to backend errors the user can act on.
func explain(err error) error {
	switch {
	case err == nil:
		return nil
	case api.IsUnauthorized(err):
		return fmt.Errorf("%w, run `studychat login`", err)
	case api.IsForbidden(err):
		return fmt.Errorf("%w, only the author may change it", err)
	case api.IsNotFound(err):
		return fmt.Errorf("%w, see `studychat rooms` for what exists", err)
	}
	return err
}
