package state

import "errors"

var (
	// ErrSendInProgress indicates another send is already in flight.
	ErrSendInProgress = errors.New("a message is already being processed")
	// ErrManagerNil indicates the manager struct hasn't been initialized.
	ErrManagerNil = errors.New("state manager is nil")
	// ErrNoClient indicates the manager was constructed without a client collaborator.
	ErrNoClient = errors.New("no AI client configured")
)
