package respond

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"biomrk-backend/internal/shared/util"
)

// Cached writes payload as JSON with an ETag and answers 304 when the client
// already holds the same body.
func Cached(c *gin.Context, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		Error(c, http.StatusInternalServerError, "internal_error", "failed to encode response", nil)
		return
	}
	tag := util.ETag(body)
	c.Header("ETag", tag)
	c.Header("Cache-Control", "no-cache")
	if matchesETag(c.GetHeader("If-None-Match"), tag) {
		c.Status(http.StatusNotModified)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

func matchesETag(header, tag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == tag || candidate == "*" {
			return true
		}
	}
	return false
}
