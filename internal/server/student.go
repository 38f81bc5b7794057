package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	feedomain "github.com/smallbiznis/bursar/internal/fee/domain"
	ledgerdomain "github.com/smallbiznis/bursar/internal/ledger/domain"
	studentdomain "github.com/smallbiznis/bursar/internal/student/domain"
)

func (s *Server) CreateStudent(c *gin.Context) {
	var req studentdomain.CreateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	student, err := s.studentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": student})
}

func (s *Server) ListStudents(c *gin.Context) {
	students, err := s.studentSvc.ListActive(c.Request.Context(), c.Query("class_level"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": students})
}

func (s *Server) GetStudent(c *gin.Context) {
	student, err := s.studentSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": student})
}

func (s *Server) GetStudentLedger(c *gin.Context) {
	term, err := parseOptionalInt(c.Query("term"))
	if err != nil {
		AbortWithError(c, newValidationError("term", "invalid_term", "invalid term"))
		return
	}
	year, err := parseOptionalInt(c.Query("year"))
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}

	ledger, err := s.ledgerSvc.StudentLedger(c.Request.Context(), ledgerdomain.StudentLedgerRequest{
		StudentID: c.Param("id"),
		Term:      term,
		Year:      year,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": ledger})
}

func (s *Server) GetStudentFeeBreakdown(c *gin.Context) {
	term, err := queryInt(c.Query("term"))
	if err != nil {
		AbortWithError(c, newValidationError("term", "invalid_term", "invalid term"))
		return
	}
	year, err := queryInt(c.Query("year"))
	if err != nil {
		AbortWithError(c, newValidationError("year", "invalid_year", "invalid year"))
		return
	}

	items, err := s.feeSvc.GetStudentFeeBreakdown(c.Request.Context(), feedomain.FeeBreakdownRequest{
		StudentID: c.Param("id"),
		Term:      term,
		Year:      year,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"line_items":   items,
		"total_amount": feedomain.TotalOf(items),
	}})
}
