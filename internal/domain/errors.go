package domain

import "errors"

var (
	// Configuration / authorization errors: rejected before any state
	// mutation.
	ErrUnauthorized     = errors.New("unauthorized")
	ErrDuplicateSource  = errors.New("source already registered")
	ErrCapacityExceeded = errors.New("source capacity exceeded")
	ErrUnknownSource    = errors.New("unknown source")
	ErrMarketExists     = errors.New("market already initialized")
	ErrMarketNotFound   = errors.New("market not initialized")
	ErrGrantNotFound    = errors.New("access grant not found")

	// Data-quality errors: the caller is responsible for retry or fallback.
	ErrSourceNotRegistered = errors.New("source not registered")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrStalePrice          = errors.New("price record stale")
	ErrRecordNotFound      = errors.New("price record not found")
	ErrNoValidPrices       = errors.New("no valid prices")

	// ErrPreconditionFailed surfaces an encrypted-assertion failure. The
	// substrate cannot explain why without revealing the operands, so the
	// caller only learns that the invocation's required-true condition did
	// not hold.
	ErrPreconditionFailed = errors.New("encrypted precondition failed")

	ErrNotFound = errors.New("not found")
)
