package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

// readBody slurps the request body so it can be schema-validated and then
// decoded from the same bytes.
func readBody(c *gin.Context) ([]byte, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil || len(body) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Request body is required",
			},
		})
		return nil, false
	}
	return body, true
}

func bindJSON(c *gin.Context, body []byte, dest any) bool {
	if err := json.Unmarshal(body, dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST_BODY",
				"message": "Invalid request body format",
			},
		})
		return false
	}
	return true
}
