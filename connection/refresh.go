package connection

// RefreshState tracks one in-flight per-address connection refresh: a
// caller-owned handle to the async task doing the work (e.g. a
// context.CancelFunc or a channel to await), installed once the task
// completes. The state machine a caller drives through a Container is:
// Stable (no entry) -> Starting (MarkRefreshStarted) -> Running
// (SetRefreshOperation) -> Done (MarkRefreshDone) -> Installed
// (ReplaceOrAddConnectionForAddress + ClearRefreshState).
type RefreshState[C any] struct {
	Handle any
	Result *ClusterNode[C]
}

// MarkRefreshStarted records that address's refresh has begun. It returns
// false if a refresh for this address was already marked started, so
// callers can avoid launching duplicate refresh tasks.
func (c *Container[C]) MarkRefreshStarted(address string) bool {
	if _, already := c.refreshAddressesStarted.Get(address); already {
		return false
	}
	c.refreshAddressesStarted.Set(address, struct{}{})
	return true
}

// IsRefreshStarted reports whether address has an in-progress or
// completed refresh registered.
func (c *Container[C]) IsRefreshStarted(address string) bool {
	_, ok := c.refreshAddressesStarted.Get(address)
	return ok
}

// SetRefreshOperation installs the task handle for address's refresh,
// transitioning it from Starting to Running.
func (c *Container[C]) SetRefreshOperation(address string, state *RefreshState[C]) {
	c.refreshOperations.Set(address, state)
}

// GetRefreshOperation returns the in-flight refresh state for address, if
// any.
func (c *Container[C]) GetRefreshOperation(address string) (*RefreshState[C], bool) {
	return c.refreshOperations.Get(address)
}

// MarkRefreshDone transitions address's refresh from Running to Done,
// recording the resulting node so a caller polling for completion can
// install it.
func (c *Container[C]) MarkRefreshDone(address string, result *ClusterNode[C]) {
	if state, ok := c.refreshOperations.Get(address); ok {
		state.Result = result
	}
	c.refreshAddressesDone.Set(address, struct{}{})
}

// IsRefreshDone reports whether address's refresh has finished running.
func (c *Container[C]) IsRefreshDone(address string) bool {
	_, ok := c.refreshAddressesDone.Get(address)
	return ok
}

// ClearRefreshState removes all refresh bookkeeping for address,
// transitioning it back to Stable once the result has been installed (or
// discarded).
func (c *Container[C]) ClearRefreshState(address string) {
	c.refreshAddressesStarted.Delete(address)
	c.refreshOperations.Delete(address)
	c.refreshAddressesDone.Delete(address)
}
