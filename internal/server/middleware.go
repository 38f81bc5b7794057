package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
	"github.com/smallbiznis/bursar/internal/schoolcontext"
)

const HeaderSchool = "X-School-ID"

// SchoolContext scopes the request to the school named by X-School-ID, or to
// the configured default school when the header is absent.
func (s *Server) SchoolContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		schoolID := snowflake.ID(s.cfg.DefaultSchoolID)
		if raw := strings.TrimSpace(c.GetHeader(HeaderSchool)); raw != "" {
			parsed, err := snowflake.ParseString(raw)
			if err != nil || parsed <= 0 {
				AbortWithError(c, newValidationError("school_id", "invalid_school", "invalid X-School-ID"))
				return
			}
			schoolID = parsed
		}
		if schoolID <= 0 {
			AbortWithError(c, newValidationError("school_id", "invalid_school", "missing X-School-ID"))
			return
		}

		ctx := schoolcontext.WithSchoolID(c.Request.Context(), schoolID)
		ctx = obscontext.WithSchoolID(ctx, schoolID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
