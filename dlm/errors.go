package dlm

import "errors"

var (
	// ErrNoStagingFile indicates a write or commit without a preceding flash-init.
	ErrNoStagingFile = errors.New("no staging file open")

	// ErrInstallInProgress indicates a request received while a commit is being installed.
	ErrInstallInProgress = errors.New("install in progress")

	// ErrInvalidBank indicates a bank directory whose name does not end in 0 or 1.
	ErrInvalidBank = errors.New("invalid bank directory")

	// ErrUnsafeArchivePath indicates an archive entry escaping the bank directory.
	ErrUnsafeArchivePath = errors.New("unsafe archive path")

	// ErrInstallScript indicates that install.sh exited with a failure status.
	ErrInstallScript = errors.New("install script failed")

	// ErrMalformedRequest indicates a frame too short to carry an operation.
	ErrMalformedRequest = errors.New("malformed download manager request")
)

var errUnsupported = errors.New("unsupported operation")
