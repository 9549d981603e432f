package domain

import "github.com/pkg/errors"

var (
	// ErrAuthorization means the claimed owner does not match the account.
	ErrAuthorization = errors.New("client name did not match")
	// ErrInsufficientFunds means the mutation would make the balance negative.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrNotFound means the account does not exist.
	ErrNotFound = errors.New("account not found")
	// ErrTransport wraps upstream stream or remote call failures.
	ErrTransport = errors.New("transport failure")
	// ErrPartialData means one of several combined remote fetches failed.
	ErrPartialData = errors.New("partial data")
	// ErrTradeRejected means the exchange refused the trade.
	ErrTradeRejected = errors.New("trade rejected")
)
