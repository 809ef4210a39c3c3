// Package corelog implements a runtime-reconfigurable structured logger
// whose settings and in-memory ring sink survive canister upgrades.
package corelog

import "errors"

// ErrPermissionDenied is returned when caller lacks the permission a
// mutating or read call requires.
var ErrPermissionDenied = errors.New("corelog: permission denied")

// ErrBadFilter is returned by SetFilter when the filter string does not
// parse.
var ErrBadFilter = errors.New("corelog: malformed filter string")
