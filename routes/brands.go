package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"saas-agency-platform/middleware"
	"saas-agency-platform/models"
	"saas-agency-platform/utils"
)

type brandRequest struct {
	Name string `json:"name" binding:"required"`
}

// SetupBrandRoutes wires tenant administration. Only agency admins manage
// brands; brand-scoped accounts never see this surface.
func SetupBrandRoutes(router *gin.Engine, db *mongo.Database, authMW *middleware.AuthMiddleware) {
	brands := db.Collection("brands")

	group := router.Group("/brands")
	group.Use(authMW.RequireAuth())
	group.Use(requireAdmin())

	group.POST("", func(c *gin.Context) {
		var req brandRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		brand := models.Brand{
			ID:        primitive.NewObjectID(),
			Name:      req.Name,
			Status:    "active",
			CreatedAt: time.Now(),
		}
		if _, err := brands.InsertOne(c.Request.Context(), brand); err != nil {
			utils.RespondWithInternalError(c, "Failed to create brand", nil)
			return
		}
		c.JSON(http.StatusCreated, brand)
	})

	group.GET("", func(c *gin.Context) {
		cursor, err := brands.Find(c.Request.Context(), bson.M{},
			options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list brands", nil)
			return
		}
		var out []models.Brand
		if err := cursor.All(c.Request.Context(), &out); err != nil {
			utils.RespondWithInternalError(c, "Failed to list brands", nil)
			return
		}
		if out == nil {
			out = []models.Brand{}
		}
		c.JSON(http.StatusOK, gin.H{"brands": out, "count": len(out)})
	})

	group.PUT("/:id/status", func(c *gin.Context) {
		id, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid brand id", nil)
			return
		}

		var req struct {
			Status string `json:"status" binding:"required,oneof=active suspended"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Status must be active or suspended", nil)
			return
		}

		result, err := brands.UpdateOne(c.Request.Context(),
			bson.M{"_id": id},
			bson.M{"$set": bson.M{"status": req.Status}})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to update brand", nil)
			return
		}
		if result.MatchedCount == 0 {
			utils.RespondWithNotFound(c, "Brand not found")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "brand updated"})
	})
}

func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if middleware.GetRole(c) != "admin" {
			utils.RespondWithForbidden(c, "Admin role required")
			c.Abort()
			return
		}
		c.Next()
	}
}
