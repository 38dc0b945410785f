package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"crypto-signal-ranker/internal/justify"
	"crypto-signal-ranker/internal/market"
)

// handleQuality scores one asset's bundle. The bundle arrives in the
// request body; any field may be absent and simply reduces coverage.
func (s *Server) handleQuality(c *gin.Context) {
	var bundle market.AssetBundle
	if err := c.ShouldBindJSON(&bundle); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid bundle: " + err.Error()})
		return
	}
	bundle.Symbol = strings.ToUpper(c.Param("symbol"))

	score := s.scorer.Evaluate(&bundle)
	c.JSON(http.StatusOK, score)
}

type justifyRequest struct {
	Direction string             `json:"direction" binding:"required,oneof=long short"`
	Bundle    market.AssetBundle `json:"bundle"`
}

// handleJustify runs the evidence ledger for one asset and direction
func (s *Server) handleJustify(c *gin.Context) {
	var req justifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	req.Bundle.Symbol = strings.ToUpper(c.Param("symbol"))

	result := s.ledger.Justify(justify.Direction(req.Direction), &req.Bundle)
	c.JSON(http.StatusOK, result)
}

type rankRequest struct {
	Bundles []*market.AssetBundle `json:"bundles" binding:"required"`
	Symbols []string              `json:"symbols"` // optional allow-list
}

// handleRank runs a full ranking batch over the submitted bundles
func (s *Server) handleRank(c *gin.Context) {
	var req rankRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	report := s.ranker.Rank(c.Request.Context(), req.Bundles, req.Symbols...)
	c.JSON(http.StatusOK, report)
}

// handleCorrelation returns the cached (or freshly computed) BTC
// correlation record for one symbol
func (s *Server) handleCorrelation(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	record := s.correlation.Correlation(c.Request.Context(), symbol)
	c.JSON(http.StatusOK, record)
}
