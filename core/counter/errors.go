package counter

import "github.com/pkg/errors"

// ErrStore means the store answered outside of its contract: an unknown error code,
// or a reply that matches no request in flight.
var ErrStore = errors.New("store contract violated")
