// Package identity turns the user and group arguments into numeric ids.
package identity

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
)

// maxID is reserved by chown(2) to mean "leave unchanged".
const maxID = ^uint32(0)

var (
	ErrUnknownUser  = errors.New("unknown user")
	ErrUnknownGroup = errors.New("unknown group")
	ErrReservedID   = errors.New("id 4294967295 is reserved")
)

// Lookup functions, replaceable in tests.
var (
	lookupUser  = user.Lookup
	lookupGroup = user.LookupGroup
)

// UID resolves a numeric uid or a user name.
func UID(s string) (uint32, error) {
	return resolve(s, ErrUnknownUser, func(name string) (string, error) {
		u, err := lookupUser(name)
		if err != nil {
			return "", err
		}
		return u.Uid, nil
	})
}

// GID resolves a numeric gid or a group name.
func GID(s string) (uint32, error) {
	return resolve(s, ErrUnknownGroup, func(name string) (string, error) {
		g, err := lookupGroup(name)
		if err != nil {
			return "", err
		}
		return g.Gid, nil
	})
}

func resolve(s string, unknown error, byName func(string) (string, error)) (uint32, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: empty name", unknown)
	}
	if id, err := parseID(s); err == nil {
		return id, nil
	} else if !errors.Is(err, strconv.ErrSyntax) {
		return 0, err
	}

	idStr, err := byName(s)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", unknown, s, err)
	}
	id, err := parseID(idStr)
	if err != nil {
		return 0, fmt.Errorf("%w %q: bad id %q: %w", unknown, s, idStr, err)
	}
	return id, nil
}

func parseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if uint32(n) == maxID {
		return 0, ErrReservedID
	}
	return uint32(n), nil
}
