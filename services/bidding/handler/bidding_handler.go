package handler

//go:generate mockgen -destination=mock_handler.go -package=handler auction-engine/services/bidding/handler AuctionManager,BidEngine

import (
	"context"
	"net/http"

	"auction-engine/internal/auth"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AuctionManager owns auction creation, edits and status transitions
type AuctionManager interface {
	Create(ctx context.Context, ownerID string, in model.NewAuction) (model.Auction, error)
	Get(ctx context.Context, auctionID string) (model.Auction, error)
	List(ctx context.Context, status *model.Status) ([]model.Auction, error)
	Update(ctx context.Context, auctionID, callerID string, patch model.AuctionPatch) (model.Auction, error)
	Delete(ctx context.Context, auctionID, callerID string) error
	Close(ctx context.Context, auctionID, callerID string) (model.Auction, error)
	Cancel(ctx context.Context, auctionID, callerID string) (model.Auction, error)
}

// BidEngine accepts bids and reports outcomes
type BidEngine interface {
	SubmitBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (model.Auction, model.Bid, error)
	ListBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetOutcome(ctx context.Context, auctionID string) (model.Outcome, error)
}

// LiveFeed streams auction events over a websocket
type LiveFeed interface {
	Subscribe(w http.ResponseWriter, r *http.Request, auctionID string) error
}

type AuctionHandler struct {
	manager AuctionManager
	engine  BidEngine
	live    LiveFeed
}

func NewAuctionHandler(manager AuctionManager, engine BidEngine, live LiveFeed) *AuctionHandler {
	return &AuctionHandler{manager: manager, engine: engine, live: live}
}

// callerID returns the authenticated user or writes a 401
func callerID(c *gin.Context) (string, bool) {
	id, ok := auth.UserID(c)
	if !ok {
		utils.JSONError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "authentication required")
	}
	return id, ok
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	auction, err := h.manager.Create(c.Request.Context(), userID, req.ToModel())
	if err != nil {
		helpers.HandleServiceError(c, "CreateAuctionHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, auction, "Auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created", map[string]any{
		"auction_id":     auction.AuctionID,
		"user_id":        userID,
		"starting_price": auction.StartingPrice.String(),
	})
}

// ListAuctionsHandler handles GET /auctions?status=
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	var status *model.Status
	if raw := c.Query("status"); raw != "" {
		s := model.Status(raw)
		status = &s
	}

	auctions, err := h.manager.List(c.Request.Context(), status)
	if err != nil {
		helpers.HandleServiceError(c, "ListAuctionsHandler", err, map[string]any{"status": c.Query("status")})
		return
	}
	if auctions == nil {
		auctions = []model.Auction{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"count":  len(auctions),
		"status": c.Query("status"),
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	auction, err := h.manager.Get(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "auction retrieved successfully")
}

// UpdateAuctionHandler handles PUT /auctions/:auction_id
func (h *AuctionHandler) UpdateAuctionHandler(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	var req helpers.UpdateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "UpdateAuctionHandler", err)
		return
	}

	auction, err := h.manager.Update(c.Request.Context(), auctionID, userID, req.ToPatch())
	if err != nil {
		helpers.HandleServiceError(c, "UpdateAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, "Auction updated successfully")
	helpers.LogSuccess("UpdateAuctionHandler", "auction updated", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
	})
}

// DeleteAuctionHandler handles DELETE /auctions/:auction_id
func (h *AuctionHandler) DeleteAuctionHandler(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	if err := h.manager.Delete(c.Request.Context(), auctionID, userID); err != nil {
		helpers.HandleServiceError(c, "DeleteAuctionHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.DeleteResponse{AuctionID: auctionID}, "Auction deleted successfully")
	helpers.LogSuccess("DeleteAuctionHandler", "auction deleted", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
	})
}

// CloseAuctionHandler handles POST /auctions/:auction_id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	h.finish(c, "CloseAuctionHandler", h.manager.Close, "Auction closed successfully")
}

// CancelAuctionHandler handles POST /auctions/:auction_id/cancel
func (h *AuctionHandler) CancelAuctionHandler(c *gin.Context) {
	h.finish(c, "CancelAuctionHandler", h.manager.Cancel, "Auction cancelled successfully")
}

func (h *AuctionHandler) finish(
	c *gin.Context,
	handlerName string,
	transition func(ctx context.Context, auctionID, callerID string) (model.Auction, error),
	message string,
) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	auction, err := transition(c.Request.Context(), auctionID, userID)
	if err != nil {
		helpers.HandleServiceError(c, handlerName, err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, auction, message)
	helpers.LogSuccess(handlerName, "auction status changed", map[string]any{
		"auction_id": auctionID,
		"user_id":    userID,
		"status":     string(auction.Status),
	})
}

// PlaceBidHandler handles POST /auctions/:auction_id/bid
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	auction, bid, err := h.engine.SubmitBid(c.Request.Context(), auctionID, userID, *req.Amount)
	if err != nil {
		helpers.HandleServiceError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id": auctionID,
			"user_id":    userID,
			"amount":     req.Amount.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.BidResponse{Auction: auction, Bid: bid}, "Bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed", map[string]any{
		"bid_id":     bid.BidID,
		"auction_id": auctionID,
		"user_id":    userID,
		"amount":     bid.Amount.String(),
	})
}

// GetBidsHandler handles GET /auctions/:auction_id/bids
func (h *AuctionHandler) GetBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bids, err := h.engine.ListBids(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}
	if bids == nil {
		bids = []model.Bid{}
	}

	utils.JSONResponse(c, http.StatusOK, bids, "bids retrieved successfully")
	helpers.LogSuccess("GetBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(bids),
	})
}

// GetOutcomeHandler handles GET /auctions/:auction_id/outcome
func (h *AuctionHandler) GetOutcomeHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	outcome, err := h.engine.GetOutcome(c.Request.Context(), auctionID)
	if err != nil {
		helpers.HandleServiceError(c, "GetOutcomeHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, outcome, "outcome retrieved successfully")
}

// LiveHandler handles GET /auctions/:auction_id/live by upgrading to a websocket
func (h *AuctionHandler) LiveHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if _, err := h.manager.Get(c.Request.Context(), auctionID); err != nil {
		helpers.HandleServiceError(c, "LiveHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	if err := h.live.Subscribe(c.Writer, c.Request, auctionID); err != nil {
		// the upgrader has already written the response
		utils.Warn("LiveHandler: subscription failed", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
	}
}
