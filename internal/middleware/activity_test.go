package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"messaging-service/internal/middleware"
	"messaging-service/internal/mocks"
	"messaging-service/internal/presence"
)

func TestActivityTouchesAuthenticatedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	users := new(mocks.UserRepositoryMock)
	users.On("TouchPresence", mock.Anything, 42).Return(nil).Once()

	router := gin.New()
	router.Use(func(c *gin.Context) { c.Set("userID", 42) })
	router.Use(middleware.Activity(presence.NewTracker(users)))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	users.AssertExpectations(t)
}

func TestActivitySkipsAnonymousRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	users := new(mocks.UserRepositoryMock)

	router := gin.New()
	router.Use(middleware.Activity(presence.NewTracker(users)))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	users.AssertNotCalled(t, "TouchPresence", mock.Anything, mock.Anything)
}
