package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trading-core/internal/wallet"
	"trading-core/pkg/db"
)

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// createWallet provisions a new custodial wallet for the authenticated
// user. Fails with AlreadyExists if the user already has one.
func (s *Server) createWallet(c *gin.Context) {
	userID := CurrentUserID(c)
	ctx := c.Request.Context()

	publicKey, mnemonic, err := s.Wallets.Create(ctx, userID)
	if err != nil {
		if errors.Is(err, wallet.ErrAlreadyExists) {
			respondError(c, http.StatusConflict, "ALREADY_EXISTS", "you already have a wallet; use export to retrieve it")
			return
		}
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"public_key": publicKey,
		"mnemonic":   mnemonic,
	})
}

type importWalletRequest struct {
	Mnemonic string `json:"mnemonic" binding:"required"`
}

// importWallet provisions a wallet from a caller-supplied mnemonic.
func (s *Server) importWallet(c *gin.Context) {
	userID := CurrentUserID(c)

	var req importWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", "a mnemonic is required")
		return
	}

	ctx := c.Request.Context()
	publicKey, err := s.Wallets.Import(ctx, userID, req.Mnemonic)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrAlreadyExists):
			respondError(c, http.StatusConflict, "ALREADY_EXISTS", "you already have a wallet; use export to retrieve it")
		case errors.Is(err, wallet.ErrInvalidMnemonic):
			respondError(c, http.StatusBadRequest, "INVALID_INPUT", "mnemonic is not a valid recovery phrase")
		default:
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"public_key": publicKey})
}

// exportKey returns the caller's own mnemonic. Authorization is enforced by
// Store.Export itself (caller ID must equal target ID).
func (s *Server) exportKey(c *gin.Context) {
	userID := CurrentUserID(c)
	ctx := c.Request.Context()

	mnemonic, err := s.Wallets.Export(ctx, userID, userID)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrNotFound):
			respondError(c, http.StatusNotFound, "NOT_FOUND", "you do not have a wallet yet")
		case errors.Is(err, wallet.ErrUnauthorized):
			respondError(c, http.StatusForbidden, "UNAUTHORIZED", "not authorized for this wallet")
		default:
			respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"mnemonic": mnemonic})
}

// getWalletAddress returns the caller's public key.
func (s *Server) getWalletAddress(c *gin.Context) {
	userID := CurrentUserID(c)
	ctx := c.Request.Context()

	handle, err := s.Wallets.Get(ctx, userID)
	if err != nil || handle == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "you do not have a wallet yet")
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": handle.PublicKey().String()})
}

// getBalance returns the caller's current cached balance.
func (s *Server) getBalance(c *gin.Context) {
	userID := CurrentUserID(c)
	ctx := c.Request.Context()

	handle, err := s.Wallets.Get(ctx, userID)
	if err != nil || handle == nil {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "you do not have a wallet yet")
		return
	}

	lamports := s.Balances.GetBalance(ctx, userID, handle.PublicKey())
	c.JSON(http.StatusOK, gin.H{
		"lamports": lamports,
		"active":   lamports >= s.MinTradingBalance,
	})
}

// getMetrics returns the caller's own performance aggregate (P10: filtered
// strictly by user ID in the persistence layer).
func (s *Server) getMetrics(c *gin.Context) {
	userID := CurrentUserID(c)
	ctx := c.Request.Context()

	metrics, err := s.Ledger.GetMetrics(ctx, userID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_profit": metrics.TotalProfit,
		"trade_count":  metrics.TradeCount,
		"win_count":    metrics.WinCount,
		"loss_count":   metrics.LossCount,
		"win_rate":     metrics.WinRate,
		"best_trade":   metrics.BestTrade,
		"worst_trade":  metrics.WorstTrade,
	})
}

// getLeaderboard returns the anonymized top-N leaderboard (P11: no
// user-identifying field). Unauthenticated: leaderboard has no target user.
func (s *Server) getLeaderboard(c *gin.Context) {
	limit := 10
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	entries, err := s.Ledger.GetLeaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusOK, entries)
}

type updatePreferencesRequest struct {
	EnabledStrategies    []string `json:"enabled_strategies"`
	NotificationsEnabled bool     `json:"notifications_enabled"`
}

// updatePreferences lets a user toggle which strategies scan their wallet
// and stores their notifications flag (C11). The flag is persisted only;
// the notifier dispatcher does not read it and delivers to every user.
func (s *Server) updatePreferences(c *gin.Context) {
	userID := CurrentUserID(c)

	var req updatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_INPUT", "invalid preferences payload")
		return
	}

	prefs := db.Preferences{
		UserID:               userID,
		EnabledStrategies:    req.EnabledStrategies,
		NotificationsEnabled: req.NotificationsEnabled,
	}
	if err := s.Queries.UpsertPreferences(c.Request.Context(), prefs); err != nil {
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
