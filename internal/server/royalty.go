package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	royaltydomain "github.com/franqio/royaltyd/internal/royalty/domain"
)

func (s *Server) CreateRoyalty(c *gin.Context) {
	var req royaltydomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	royalty, err := s.royaltySvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, royalty)
}

func (s *Server) ListRoyalties(c *gin.Context) {
	req := royaltydomain.ListRequest{
		Status: royaltydomain.RoyaltyStatus(strings.TrimSpace(c.Query("status"))),
	}

	if raw := strings.TrimSpace(c.Query("establishment_id")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.EstablishmentID = id
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.Limit = limit
	}
	if raw := strings.TrimSpace(c.Query("period_from")); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.PeriodFrom = from
	}
	if raw := strings.TrimSpace(c.Query("period_to")); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			AbortWithError(c, ErrInvalidRequest)
			return
		}
		req.PeriodTo = to
	}

	royalties, err := s.royaltySvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"royalties": royalties})
}

func (s *Server) GetRoyalty(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	royalty, err := s.royaltySvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, royalty)
}

func (s *Server) DeleteRoyalty(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.royaltySvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) IssueCharge(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	charge, err := s.chargeSvc.IssueCharge(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, charge)
}

func pathID(c *gin.Context) (snowflake.ID, error) {
	return snowflake.ParseString(strings.TrimSpace(c.Param("id")))
}

func parseDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}
