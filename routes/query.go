package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"saas-agency-platform/internal/logger"
	"saas-agency-platform/internal/retrieval"
	"saas-agency-platform/middleware"
	"saas-agency-platform/models"
	"saas-agency-platform/utils"
)

type queryRequest struct {
	Query     string  `json:"query" binding:"required"`
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

type queryResponse struct {
	Chunks []models.ScoredChunk `json:"chunks"`
	Count  int                  `json:"count"`
}

// SetupQueryRoutes wires the context retrieval endpoint used by downstream
// content generation.
func SetupQueryRoutes(router *gin.Engine, retriever *retrieval.Retriever, authMW *middleware.AuthMiddleware) {
	group := router.Group("/query")
	group.Use(authMW.RequireAuth())
	group.Use(middleware.EnrichTrace())

	group.POST("", queryHandler(retriever))
}

func queryHandler(retriever *retrieval.Retriever) gin.HandlerFunc {
	return func(c *gin.Context) {
		brandID, ok := middleware.GetBrandID(c)
		if !ok {
			utils.RespondWithForbidden(c, "Token is not scoped to a brand")
			return
		}

		var req queryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		// A threshold above 1 is a valid "nothing will clear this" query and
		// returns an empty list; only negative values are malformed.
		if req.Threshold < 0 {
			utils.RespondWithBadRequest(c, "Threshold must not be negative", nil)
			return
		}

		hits, err := retriever.Query(c.Request.Context(), brandID, req.Query, retrieval.Options{
			Threshold: req.Threshold,
			Limit:     req.Limit,
		})
		if err != nil {
			// Degrade to empty context: the caller can still generate
			// without grounding, which beats failing the whole request.
			logger.Error("Retrieval failed, returning empty context", "brand_id", brandID.Hex(), "error", err)
			c.JSON(http.StatusOK, queryResponse{Chunks: []models.ScoredChunk{}, Count: 0})
			return
		}

		if hits == nil {
			hits = []models.ScoredChunk{}
		}
		c.JSON(http.StatusOK, queryResponse{Chunks: hits, Count: len(hits)})
	}
}
