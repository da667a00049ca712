package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"saas-agency-platform/internal/auth"
	"saas-agency-platform/internal/config"
	"saas-agency-platform/models"
	"saas-agency-platform/utils"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, db *mongo.Database, tokens *auth.TokenManager) {
	group := router.Group("/auth")
	usersCollection := db.Collection("users")

	group.POST("/login", func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		var user models.User
		if err := usersCollection.FindOne(c.Request.Context(), bson.M{"email": req.Email}).Decode(&user); err != nil {
			utils.RespondWithError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
			return
		}

		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			utils.RespondWithError(c, http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
			return
		}

		brandID := ""
		if !user.BrandID.IsZero() {
			brandID = user.BrandID.Hex()
		}

		pair, err := tokens.IssueTokenPair(c.Request.Context(), user.ID.Hex(), brandID, user.Role)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		secure := cfg.GinMode == "release"
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("access_token", pair.AccessToken, int(time.Until(pair.AccessExp).Seconds()), "/", "", secure, true)
		c.SetCookie("refresh_token", pair.RefreshToken, int(time.Until(pair.RefreshExp).Seconds()), "/", "", secure, true)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"access_exp":    pair.AccessExp,
			"refresh_exp":   pair.RefreshExp,
			"user": gin.H{
				"id":       user.ID.Hex(),
				"email":    user.Email,
				"role":     user.Role,
				"brand_id": brandID,
			},
		})
	})

	group.POST("/refresh", func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			if cookie, cerr := c.Cookie("refresh_token"); cerr == nil && cookie != "" {
				req.RefreshToken = cookie
			} else {
				utils.RespondWithBadRequest(c, "Refresh token is required", nil)
				return
			}
		}

		claims, err := tokens.ValidateRefreshToken(c.Request.Context(), req.RefreshToken)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid or expired refresh token")
			return
		}

		// Rotate: the old refresh token is revoked before the new pair exists.
		if err := tokens.RevokeToken(c.Request.Context(), claims.ID, true); err != nil {
			utils.RespondWithInternalError(c, "Failed to rotate token", nil)
			return
		}

		pair, err := tokens.IssueTokenPair(c.Request.Context(), claims.UserID, claims.BrandID, claims.Role)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to issue tokens", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
			"access_exp":    pair.AccessExp,
			"refresh_exp":   pair.RefreshExp,
		})
	})

	group.POST("/logout", func(c *gin.Context) {
		if cookie, err := c.Cookie("refresh_token"); err == nil && cookie != "" {
			if claims, err := tokens.ValidateRefreshToken(c.Request.Context(), cookie); err == nil {
				tokens.RevokeToken(c.Request.Context(), claims.ID, true)
			}
		}

		c.SetCookie("access_token", "", -1, "/", "", false, true)
		c.SetCookie("refresh_token", "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})
}
