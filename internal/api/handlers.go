package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tradedesk/internal/auth"
	"tradedesk/internal/engine"
	"tradedesk/internal/override"
	"tradedesk/internal/validation"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"symbol": s.engine.Snapshot().Symbol,
	})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, err := s.jwtManager.Login(req.Username, req.Password)
	if err != nil {
		if err == auth.ErrInvalidCredentials {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   s.jwtManager.GetAccessTokenDuration(),
	})
}

func (s *Server) handleSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleTrends(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"trends":     snap.Trends,
		"alignment":  snap.Alignment,
		"updated_at": snap.UpdatedAt,
	})
}

func (s *Server) handleSignals(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"suggestions": snap.Suggestions,
		"updated_at":  snap.UpdatedAt,
	})
}

func (s *Server) handleOpportunities(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"opportunities": snap.Opportunities,
		"active_id":     snap.ActiveID,
		"updated_at":    snap.UpdatedAt,
	})
}

func (s *Server) handleValidation(c *gin.Context) {
	snap := s.engine.Snapshot()
	if snap.Validation == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no opportunity selected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"validation": snap.Validation,
		"overrides":  snap.Overrides,
	})
}

func (s *Server) handleSizing(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.SizingData())
}

func (s *Server) handleTrade(c *gin.Context) {
	trade := s.engine.TradeSnapshot()
	if trade == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no trade in progress"})
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.engine.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

func (s *Server) handleSelectOpportunity(c *gin.Context) {
	id := c.Param("id")
	if err := s.engine.SelectOpportunity(c.Request.Context(), id); err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.Snapshot())
}

type accountRequest struct {
	Balance        float64 `json:"balance" binding:"required,gt=0"`
	RiskPercentage float64 `json:"risk_percentage" binding:"required,gt=0"`
}

func (s *Server) handleAccountSettings(c *gin.Context) {
	var req accountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "balance and risk_percentage must be positive"})
		return
	}

	s.engine.SetAccountSettings(req.Balance, req.RiskPercentage)
	c.JSON(http.StatusOK, s.engine.SizingData())
}

type tradeFieldsRequest struct {
	Entry   *float64  `json:"entry"`
	Stop    *float64  `json:"stop"`
	Targets []float64 `json:"targets"`
}

func (s *Server) handleTradeOverrides(c *gin.Context) {
	var req tradeFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := s.engine.SetTradeOverrides(req.Entry, req.Stop, req.Targets); err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.SizingData())
}

type importanceRequest struct {
	Importance string `json:"importance" binding:"required"`
}

func (s *Server) handleCheckImportance(c *gin.Context) {
	var req importanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "importance is required"})
		return
	}

	importance := override.Importance(req.Importance)
	switch importance {
	case override.ImportanceRequired, override.ImportanceWarning, override.ImportanceIgnored:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "importance must be required, warning or ignored"})
		return
	}

	s.engine.SetCheckImportance(validation.CheckName(c.Param("name")), importance)

	summary, err := s.engine.OverrideSummary()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"updated": true})
		return
	}
	c.JSON(http.StatusOK, summary)
}

type overrideRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Server) handleCheckOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}

	applied, err := s.engine.OverrideCheck(validation.CheckName(c.Param("name")), req.Reason)
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	if !applied {
		c.JSON(http.StatusConflict, gin.H{"error": "check is not overridable"})
		return
	}

	summary, err := s.engine.OverrideSummary()
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleExecuteTrade(c *gin.Context) {
	trade, err := s.engine.ExecuteTrade(c.Request.Context())
	if err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) handleMoveToBreakeven(c *gin.Context) {
	if err := s.engine.MoveToBreakeven(); err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.TradeSnapshot())
}

func (s *Server) handleEnableTrailing(c *gin.Context) {
	if err := s.engine.EnableTrailingStop(); err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.TradeSnapshot())
}

type closeRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCloseTrade(c *gin.Context) {
	var req closeRequest
	// Body is optional, a bare close is fine
	_ = c.ShouldBindJSON(&req)

	if err := s.engine.CloseTrade(req.Reason); err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.TradeSnapshot())
}

type noteRequest struct {
	Text string `json:"text" binding:"required"`
}

func (s *Server) handleAddNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	if err := s.engine.AddTradeNote(req.Text); err != nil {
		s.respondEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.engine.TradeSnapshot())
}

// respondEngineError maps engine errors to HTTP status codes
func (s *Server) respondEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrUnknownID):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNoOpportunity):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrTradeInProgress), errors.Is(err, engine.ErrSelectionChanged):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotValid), errors.Is(err, engine.ErrSizingInvalid):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
