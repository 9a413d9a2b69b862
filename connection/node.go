package connection

// ConnectionType selects which of a node's two connections a caller
// prefers. Management connections are optional: a node that never had one
// opened falls back to its user connection regardless of preference.
type ConnectionType int

const (
	// User is the connection ordinary commands run on.
	User ConnectionType = iota
	// PreferManagement asks for the management connection if one exists.
	PreferManagement
)

// ClusterNode groups the two connections a single cluster node may have
// open: the user connection every node has, and an optional management
// connection opened lazily for administrative commands (CLUSTER, CONFIG,
// ...).
type ClusterNode[C any] struct {
	UserConnection       ConnectionDetails[C]
	ManagementConnection *ConnectionDetails[C]
}

// NewClusterNode builds a ClusterNode with only a user connection.
func NewClusterNode[C any](user ConnectionDetails[C]) *ClusterNode[C] {
	return &ClusterNode[C]{UserConnection: user}
}

// ConnectionsCount returns how many distinct connections this node holds
// open (1 or 2).
func (n *ClusterNode[C]) ConnectionsCount() int {
	if n.ManagementConnection != nil {
		return 2
	}
	return 1
}

// GetConnection returns the connection matching connType, falling back to
// the user connection when a management connection was requested but
// never opened.
func (n *ClusterNode[C]) GetConnection(connType ConnectionType) C {
	if connType == PreferManagement && n.ManagementConnection != nil {
		return n.ManagementConnection.Conn
	}
	return n.UserConnection.Conn
}

// GetConnectionDetails is like GetConnection but returns the full details,
// including IP/AZ metadata.
func (n *ClusterNode[C]) GetConnectionDetails(connType ConnectionType) ConnectionDetails[C] {
	if connType == PreferManagement && n.ManagementConnection != nil {
		return *n.ManagementConnection
	}
	return n.UserConnection
}

// AZ returns the availability zone recorded for this node's user
// connection, if any.
func (n *ClusterNode[C]) AZ() *string {
	return n.UserConnection.AZ
}

// ConnectionsMap is the address-keyed set of live cluster nodes.
type ConnectionsMap[C any] map[string]*ClusterNode[C]
