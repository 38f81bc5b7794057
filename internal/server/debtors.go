package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	agingdomain "github.com/smallbiznis/bursar/internal/aging/domain"
)

func (s *Server) GetDebtors(c *gin.Context) {
	var req agingdomain.GetDebtorsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	report, err := s.agingSvc.GetDebtors(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": report})
}
