package model

// PoolStatement is the input for the XLSX statement export: the pool summary
// plus its full contribution history, withdrawn entries included.
type PoolStatement struct {
	Pool          DemandPool
	Contributions []Contribution
}

// AwardNote is the input for the PDF award confirmation of an awarded auction.
type AwardNote struct {
	Auction      ReverseAuction
	WinningBid   Bid
	RejectedBids []Bid
}
