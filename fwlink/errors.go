package fwlink

import "errors"

var (
	// ErrTransactionActive indicates that Begin was called while another transaction is in flight.
	ErrTransactionActive = errors.New("firmware transaction already active")

	// ErrNotTransactable indicates that only commands and requests can start a transaction.
	ErrNotTransactable = errors.New("packet type cannot start a firmware transaction")
)
