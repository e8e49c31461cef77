package handler

import (
	"net/http"
	"strconv"

	"github.com/cho-y-j/dispatch/internal/domain"
	"github.com/gin-gonic/gin"
)

// Gateway headers carrying the authenticated caller.
const (
	HeaderActorID        = "X-Actor-ID"
	HeaderActorRole      = "X-Actor-Role"
	HeaderOrganizationID = "X-Organization-ID"
)

const principalKey = "dispatch.principal"

// Identity reads the caller from the gateway headers and rejects requests
// that carry none.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parsePrincipal(c.Request.Header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Error: err.Error(), Code: "UNAUTHENTICATED"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

func parsePrincipal(h http.Header) (domain.Principal, error) {
	id, err := strconv.ParseInt(h.Get(HeaderActorID), 10, 64)
	if err != nil || id <= 0 {
		return domain.Principal{}, domain.Invalid("missing or invalid %s header", HeaderActorID)
	}

	role := domain.Role(h.Get(HeaderActorRole))
	if !role.Valid() {
		return domain.Principal{}, domain.Invalid("missing or invalid %s header", HeaderActorRole)
	}

	p := domain.Principal{ID: id, Role: role}
	if raw := h.Get(HeaderOrganizationID); raw != "" {
		org, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || org <= 0 {
			return domain.Principal{}, domain.Invalid("invalid %s header", HeaderOrganizationID)
		}
		p.OrganizationID = &org
	}
	return p, nil
}

// PrincipalFrom returns the caller stored by Identity.
func PrincipalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}
