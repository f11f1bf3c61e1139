package engine

import "errors"

var (
	ErrInvalidSpec              = errors.New("invalid spec")
	ErrInvalidQuantity          = errors.New("invalid quantity")
	ErrInvalidBid               = errors.New("invalid bid")
	ErrPoolNotOpen              = errors.New("pool not open")
	ErrAuctionNotOpen           = errors.New("auction not open")
	ErrPoolAlreadyDecided       = errors.New("pool already decided")
	ErrAuctionAlreadyAwarded    = errors.New("auction already awarded")
	ErrConcurrentUpdateConflict = errors.New("concurrent update conflict")
	ErrUnauthorized             = errors.New("unauthorized")
	ErrBidNotFound              = errors.New("bid not found")
	ErrBidNotPending            = errors.New("bid not pending")
	ErrPriceMismatch            = errors.New("final price mismatch")
	ErrStorageUnavailable       = errors.New("storage unavailable")
	ErrNotFound                 = errors.New("not found")
)
