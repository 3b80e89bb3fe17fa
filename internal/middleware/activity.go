package middleware

import (
	"log"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/presence"
)

// Activity records presence for every authenticated request after the
// handler runs. Failures are logged and never affect the response.
func Activity(tracker *presence.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		userID := UserID(c)
		if userID == 0 {
			return
		}
		if err := tracker.Touch(c.Request.Context(), userID); err != nil {
			log.Printf("activity: presence touch for user %d: %v", userID, err)
		}
	}
}
