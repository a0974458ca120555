package handler

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wb-go/wbf/ginext"
)

func NewRouter(notifyHandler *NotifyHandler) *ginext.Engine {
	router := ginext.New("release")
	router.Use(MetricsMiddleware)

	router.POST("/articles/:id/notifications", notifyHandler.QueueNotifications)
	router.DELETE("/articles/:id/notifications", notifyHandler.CancelNotifications)
	router.GET("/articles/:id/notifications", notifyHandler.GetNotifications)
	router.GET("/articles/:id/notifications/:method/status", notifyHandler.GetNotificationStatus)
	router.GET("/articles/:id/notifications/:method/data", notifyHandler.GetNotificationData)
	router.GET("/notifications/pending", notifyHandler.GetPendingNotifications)
	router.GET("/metrics", func(c *ginext.Context) {
		promhttp.Handler().ServeHTTP(c.Writer, c.Request)
	})
	return router
}
