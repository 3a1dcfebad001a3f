package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type MeResponse struct {
	PublicID    string  `json:"publicId"`
	DisplayName *string `json:"displayName,omitempty"`
}

type MeUpdateReq struct {
	DisplayName *string `json:"displayName"`
}

type RestoreReq struct {
	PublicID string `json:"publicId" binding:"required"`
}

func currentUser(c *gin.Context, db *gorm.DB) (*User, bool) {
	pubID := c.GetString("userPublicID")
	if pubID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no user"})
		return nil, false
	}
	var u User
	if err := db.First(&u, "public_id = ?", pubID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return nil, false
	}
	return &u, true
}

// GET /api/v1/me
func GetMe(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := currentUser(c, db)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, MeResponse{PublicID: u.PublicID, DisplayName: u.DisplayName})
	}
}

// PUT /api/v1/me
func UpdateMe(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := currentUser(c, db)
		if !ok {
			return
		}
		var req MeUpdateReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad request"})
			return
		}
		if req.DisplayName != nil {
			name := strings.TrimSpace(*req.DisplayName)
			if n := len([]rune(name)); n < 2 || n > 40 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "displayName must be 2..40 chars"})
				return
			}
			u.DisplayName = &name
		}
		if err := db.Save(u).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db"})
			return
		}
		c.JSON(http.StatusOK, MeResponse{PublicID: u.PublicID, DisplayName: u.DisplayName})
	}
}

// POST /api/v1/me/restore moves this browser onto an existing anonymous user.
func RestoreAccount(db *gorm.DB, secureCookies bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RestoreReq
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.PublicID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "publicId required"})
			return
		}
		var u User
		if err := db.First(&u, "public_id = ?", strings.TrimSpace(req.PublicID)).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		setUserCookie(c, u.PublicID, secureCookies)
		c.Header(publicIDHeader, u.PublicID)
		c.JSON(http.StatusOK, gin.H{"status": "restored"})
	}
}
