package http

import (
	"fulfillment-service/internal/service"

	"github.com/gin-contrib/cors"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
)

func Router(svc service.FulfillmentService, log *zap.Logger) *gin.Engine {
	r := gin.Default()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	h := NewFulfillmentHandler(svc, log)
	r.POST("/reservations", h.StartReservation)
	r.PUT("/reservations/:reservation_id", h.FinalizeReservation)
	r.POST("/purchases", h.StartPurchase)
	r.POST("/stock-adjustments", h.AdjustStock)
	r.GET("/executions/:execution_id", h.GetExecution)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	return r
}
