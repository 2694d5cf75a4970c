package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llmgateway/llmgateway/catalog"
)

// ListModels handles GET /v1/models. Deactivated models are hidden unless
// include_deactivated=true; exclude_deprecated=true additionally drops models
// whose every provider is deprecated.
func ListModels(c *gin.Context) {
	opts := catalog.ListOptions{
		IncludeDeactivated: queryBool(c, "include_deactivated"),
		ExcludeDeprecated:  queryBool(c, "exclude_deprecated"),
	}
	views := registry.ListModels(time.Now(), opts)
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   views,
	})
}

func queryBool(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.Query(name))
	return err == nil && v
}
