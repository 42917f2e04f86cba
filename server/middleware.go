package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ByLCY/adsmith/logger"
)

// OrganizationHeader names the tenant of a request.
const OrganizationHeader = "X-Organization-ID"

const orgKey = "organization_id"

// RequireOrganization rejects requests without a valid organization id.
func RequireOrganization() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(OrganizationHeader)
		if raw == "" {
			fail(c, http.StatusBadRequest, ErrCodeOrganization, OrganizationHeader+" header is required")
			return
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			fail(c, http.StatusBadRequest, ErrCodeOrganization, OrganizationHeader+" must be a UUID")
			return
		}
		c.Set(orgKey, id)
		ctx, l := logger.WithOrganization(c.Request.Context(), logger.FromGin(c, nil), id.String())
		c.Request = c.Request.WithContext(ctx)
		logger.SetGin(c, l)
		c.Next()
	}
}

func organization(c *gin.Context) uuid.UUID {
	id, _ := c.Get(orgKey)
	org, _ := id.(uuid.UUID)
	return org
}

// BodyLimit caps request bodies at limit bytes.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
