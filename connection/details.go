// Package connection holds the live registry of node connections backing
// a cluster client: per-address connection details, per-node grouping of
// a user connection with an optional management connection, and the
// Container that maps slots and addresses onto those nodes while applying
// a replica-selection strategy.
package connection

// ConnectionDetails pairs an opaque connection handle with the metadata
// the container needs to route and report on it.
type ConnectionDetails[C any] struct {
	Conn C
	IP   *string
	AZ   *string
}

// NewConnectionDetails builds a ConnectionDetails with no IP/AZ metadata.
func NewConnectionDetails[C any](conn C) ConnectionDetails[C] {
	return ConnectionDetails[C]{Conn: conn}
}
