package resolver

import "errors"

// ErrSingletonViolation is returned by New when a Facade has already been
// constructed in this process. It corresponds to the original's
// SingletonInst, which raises on a second instantiation.
var ErrSingletonViolation = errors.New("resolver: a Facade has already been constructed in this process")

// ErrNoUpstreamServers is returned when an upstreamSet is configured with an
// empty list of nameserver addresses.
var ErrNoUpstreamServers = errors.New("resolver: no upstream nameservers configured")
