package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
)

func (s *Server) CreateFeeStructure(c *gin.Context) {
	var req feedomain.CreateFeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	structure, err := s.feeSvc.CreateFeeStructure(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": structure})
}

func (s *Server) ListFeeStructures(c *gin.Context) {
	var req feedomain.ListFeeStructuresRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	structures, err := s.feeSvc.ListFeeStructures(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": structures})
}

func (s *Server) UpsertFeeOverride(c *gin.Context) {
	var req feedomain.UpsertFeeOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	override, err := s.feeSvc.UpsertFeeOverride(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": override})
}

func (s *Server) DeactivateFeeOverride(c *gin.Context) {
	if err := s.feeSvc.DeactivateFeeOverride(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
