package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mavuno/demand-engine/internal/coordinator"
	"github.com/mavuno/demand-engine/internal/engine"
	"github.com/mavuno/demand-engine/internal/http/middleware"
	"github.com/mavuno/demand-engine/internal/model"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"
)

type Handler struct {
	engine *coordinator.Coordinator
	log    zerolog.Logger
}

func NewHandler(engine *coordinator.Coordinator, log zerolog.Logger) *Handler {
	return &Handler{engine: engine, log: log}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/pools", h.createPool)
	protected.GET("/pools/:id", h.getPool)
	protected.GET("/pools/:id/contributions", h.listContributions)
	protected.POST("/pools/:id/contributions", h.contribute)
	protected.POST("/pools/:id/fulfill", h.markFulfilling)
	protected.POST("/pools/:id/cancel", h.cancelPool)
	protected.GET("/pools/:id/statement", h.exportPoolStatement)
	protected.POST("/contributions/:id/withdraw", h.withdrawContribution)

	protected.POST("/auctions", h.createAuction)
	protected.GET("/auctions/:id", h.getAuction)
	protected.GET("/auctions/:id/bids", h.listBids)
	protected.POST("/auctions/:id/bids", h.submitBid)
	protected.POST("/auctions/:id/award", h.acceptBid)
	protected.POST("/auctions/:id/cancel", h.cancelAuction)
	protected.GET("/auctions/:id/award-note", h.exportAwardNote)
}

type createPoolRequest struct {
	ResourceKind     string   `json:"resource_kind" binding:"required"`
	TargetQuantity   float64  `json:"target_quantity" binding:"required"`
	TargetUnitPrice  *float64 `json:"target_unit_price"`
	DeliveryLocation string   `json:"delivery_location"`
	DeliverBy        string   `json:"deliver_by" binding:"required"`
}

type contributeRequest struct {
	Quantity float64 `json:"quantity" binding:"required"`
}

type markFulfillingRequest struct {
	FinalUnitPrice float64 `json:"final_unit_price" binding:"required"`
}

type createAuctionRequest struct {
	Commodity   string  `json:"commodity" binding:"required"`
	Quantity    float64 `json:"quantity" binding:"required"`
	QualitySpec string  `json:"quality_spec"`
	DeliverBy   string  `json:"deliver_by" binding:"required"`
}

type submitBidRequest struct {
	Price        float64 `json:"price" binding:"required"`
	QualityOffer string  `json:"quality_offer"`
}

type acceptBidRequest struct {
	BidID string `json:"bid_id" binding:"required"`
}

type poolResponse struct {
	ID                 uuid.UUID  `json:"id"`
	ResourceKind       string     `json:"resource_kind"`
	TargetQuantity     float64    `json:"target_quantity"`
	TargetUnitPrice    *float64   `json:"target_unit_price,omitempty"`
	CurrentQuantity    float64    `json:"current_quantity"`
	DeliveryLocation   string     `json:"delivery_location"`
	DeliverBy          time.Time  `json:"deliver_by"`
	State              string     `json:"state"`
	ThresholdCrossedAt *time.Time `json:"threshold_crossed_at,omitempty"`
	FinalUnitPrice     *float64   `json:"final_unit_price,omitempty"`
	CreatedBy          uuid.UUID  `json:"created_by"`
	CreatedAt          time.Time  `json:"created_at"`
	Version            int64      `json:"version"`
}

type contributionResponse struct {
	ID            uuid.UUID `json:"id"`
	PoolID        uuid.UUID `json:"pool_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Quantity      float64   `json:"quantity"`
	SubmittedAt   time.Time `json:"submitted_at"`
	Status        string    `json:"status"`
}

type contributeResponse struct {
	Accepted         bool                 `json:"accepted"`
	CrossedThreshold bool                 `json:"crossed_threshold"`
	PoolState        string               `json:"pool_state"`
	CurrentQuantity  float64              `json:"current_quantity"`
	Contribution     contributionResponse `json:"contribution"`
}

type auctionResponse struct {
	ID           uuid.UUID  `json:"id"`
	Commodity    string     `json:"commodity"`
	Quantity     float64    `json:"quantity"`
	QualitySpec  string     `json:"quality_spec,omitempty"`
	DeliverBy    time.Time  `json:"deliver_by"`
	State        string     `json:"state"`
	AwardedBidID *uuid.UUID `json:"awarded_bid_id,omitempty"`
	PostedBy     uuid.UUID  `json:"posted_by"`
	CreatedAt    time.Time  `json:"created_at"`
	Version      int64      `json:"version"`
}

type bidResponse struct {
	ID           uuid.UUID `json:"id"`
	AuctionID    uuid.UUID `json:"auction_id"`
	BidderID     uuid.UUID `json:"bidder_id"`
	Price        float64   `json:"price"`
	QualityOffer string    `json:"quality_offer,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
	Status       string    `json:"status"`
}

func (h *Handler) createPool(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deliverBy, err := parseDate(req.DeliverBy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deliver_by"})
		return
	}

	pool, err := h.engine.CreatePool(c.Request.Context(), principal, engine.PoolSpec{
		ResourceKind:     req.ResourceKind,
		TargetQuantity:   req.TargetQuantity,
		TargetUnitPrice:  req.TargetUnitPrice,
		DeliveryLocation: req.DeliveryLocation,
		DeliverBy:        deliverBy,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toPoolResponse(*pool))
}

func (h *Handler) getPool(c *gin.Context) {
	poolID, ok := parseID(c)
	if !ok {
		return
	}
	pool, err := h.engine.GetPool(c.Request.Context(), poolID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPoolResponse(*pool))
}

func (h *Handler) listContributions(c *gin.Context) {
	poolID, ok := parseID(c)
	if !ok {
		return
	}
	contributions, err := h.engine.ListContributions(c.Request.Context(), poolID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	result := make([]contributionResponse, 0, len(contributions))
	for _, contribution := range contributions {
		result = append(result, toContributionResponse(contribution))
	}
	c.JSON(http.StatusOK, gin.H{"contributions": result})
}

func (h *Handler) contribute(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	poolID, ok := parseID(c)
	if !ok {
		return
	}

	var req contributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.engine.Contribute(c.Request.Context(), principal, poolID, req.Quantity)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contributeResponse{
		Accepted:         true,
		CrossedThreshold: result.CrossedThreshold,
		PoolState:        string(result.Pool.State),
		CurrentQuantity:  result.Pool.CurrentQuantity,
		Contribution:     toContributionResponse(result.Contribution),
	})
}

func (h *Handler) withdrawContribution(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	contributionID, ok := parseID(c)
	if !ok {
		return
	}

	pool, err := h.engine.WithdrawContribution(c.Request.Context(), principal, contributionID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPoolResponse(*pool))
}

func (h *Handler) markFulfilling(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	poolID, ok := parseID(c)
	if !ok {
		return
	}

	var req markFulfillingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pool, err := h.engine.MarkFulfilling(c.Request.Context(), principal, poolID, req.FinalUnitPrice)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPoolResponse(*pool))
}

func (h *Handler) cancelPool(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	poolID, ok := parseID(c)
	if !ok {
		return
	}

	pool, err := h.engine.CancelPool(c.Request.Context(), principal, poolID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPoolResponse(*pool))
}

func (h *Handler) exportPoolStatement(c *gin.Context) {
	poolID, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.engine.ExportPoolStatement(c.Request.Context(), poolID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, contentTypeXLSX, result.Content)
}

func (h *Handler) createAuction(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	deliverBy, err := parseDate(req.DeliverBy)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid deliver_by"})
		return
	}

	auction, err := h.engine.CreateAuction(c.Request.Context(), principal, engine.AuctionSpec{
		Commodity:   req.Commodity,
		Quantity:    req.Quantity,
		QualitySpec: req.QualitySpec,
		DeliverBy:   deliverBy,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toAuctionResponse(*auction))
}

func (h *Handler) getAuction(c *gin.Context) {
	auctionID, ok := parseID(c)
	if !ok {
		return
	}
	auction, err := h.engine.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(*auction))
}

func (h *Handler) listBids(c *gin.Context) {
	auctionID, ok := parseID(c)
	if !ok {
		return
	}
	bids, err := h.engine.ListBids(c.Request.Context(), auctionID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	result := make([]bidResponse, 0, len(bids))
	for _, bid := range bids {
		result = append(result, toBidResponse(bid))
	}
	c.JSON(http.StatusOK, gin.H{"bids": result})
}

func (h *Handler) submitBid(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	auctionID, ok := parseID(c)
	if !ok {
		return
	}

	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bid, err := h.engine.SubmitBid(c.Request.Context(), principal, auctionID, req.Price, req.QualityOffer)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toBidResponse(*bid))
}

func (h *Handler) acceptBid(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	auctionID, ok := parseID(c)
	if !ok {
		return
	}

	var req acceptBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	bidID, err := uuid.Parse(strings.TrimSpace(req.BidID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bid_id"})
		return
	}

	result, err := h.engine.AcceptBid(c.Request.Context(), principal, auctionID, bidID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auction":     toAuctionResponse(result.Auction),
		"winning_bid": toBidResponse(result.WinningBid),
	})
}

func (h *Handler) cancelAuction(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	auctionID, ok := parseID(c)
	if !ok {
		return
	}

	auction, err := h.engine.CancelAuction(c.Request.Context(), principal, auctionID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, toAuctionResponse(*auction))
}

func (h *Handler) exportAwardNote(c *gin.Context) {
	auctionID, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.engine.ExportAwardNote(c.Request.Context(), auctionID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\""+result.FileName+"\"")
	c.Data(http.StatusOK, contentTypePDF, result.Content)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidSpec),
		errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidBid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotFound),
		errors.Is(err, engine.ErrBidNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrConcurrentUpdateConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "retryable": true})
	case errors.Is(err, engine.ErrPoolNotOpen),
		errors.Is(err, engine.ErrAuctionNotOpen),
		errors.Is(err, engine.ErrPoolAlreadyDecided),
		errors.Is(err, engine.ErrAuctionAlreadyAwarded),
		errors.Is(err, engine.ErrBidNotPending),
		errors.Is(err, engine.ErrPriceMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "retryable": true})
	default:
		h.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty date")
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, errors.New("unrecognized date format")
}

func toPoolResponse(pool model.DemandPool) poolResponse {
	return poolResponse{
		ID:                 pool.ID,
		ResourceKind:       pool.ResourceKind,
		TargetQuantity:     pool.TargetQuantity,
		TargetUnitPrice:    pool.TargetUnitPrice,
		CurrentQuantity:    pool.CurrentQuantity,
		DeliveryLocation:   pool.DeliveryLocation,
		DeliverBy:          pool.DeliverBy,
		State:              string(pool.State),
		ThresholdCrossedAt: pool.ThresholdCrossedAt,
		FinalUnitPrice:     pool.FinalUnitPrice,
		CreatedBy:          pool.CreatedBy,
		CreatedAt:          pool.CreatedAt,
		Version:            pool.Version,
	}
}

func toContributionResponse(contribution model.Contribution) contributionResponse {
	return contributionResponse{
		ID:            contribution.ID,
		PoolID:        contribution.PoolID,
		ParticipantID: contribution.ParticipantID,
		Quantity:      contribution.Quantity,
		SubmittedAt:   contribution.SubmittedAt,
		Status:        string(contribution.Status),
	}
}

func toAuctionResponse(auction model.ReverseAuction) auctionResponse {
	return auctionResponse{
		ID:           auction.ID,
		Commodity:    auction.Commodity,
		Quantity:     auction.Quantity,
		QualitySpec:  auction.QualitySpec,
		DeliverBy:    auction.DeliverBy,
		State:        string(auction.State),
		AwardedBidID: auction.AwardedBidID,
		PostedBy:     auction.PostedBy,
		CreatedAt:    auction.CreatedAt,
		Version:      auction.Version,
	}
}

func toBidResponse(bid model.Bid) bidResponse {
	return bidResponse{
		ID:           bid.ID,
		AuctionID:    bid.AuctionID,
		BidderID:     bid.BidderID,
		Price:        bid.Price,
		QualityOffer: bid.QualityOffer,
		SubmittedAt:  bid.SubmittedAt,
		Status:       string(bid.Status),
	}
}
