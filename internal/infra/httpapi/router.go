// Package httpapi exposes the scheduler's write paths and direct notifications over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"household_scheduler/internal/app"
	"household_scheduler/internal/domain/bill"
	"household_scheduler/internal/domain/push"
)

// UserIDHeader carries the authenticated user id set by the upstream gateway.
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// Deps are the services the handlers call into.
type Deps struct {
	Bills         *app.BillLifecycleManager
	BillRepo      bill.Repository
	Reminders     *app.ReminderService
	Dispatcher    app.Dispatcher
	Subscriptions push.Repository
	Logger        *logrus.Entry
	Now           func() time.Time
}

func SetupRouter(d Deps) *gin.Engine {
	if d.Now == nil {
		d.Now = time.Now
	}
	logger := d.Logger.WithField("component", "http")

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	billHandler := NewBillHandler(d.Bills, d.BillRepo, logger, d.Now)
	reminderHandler := NewReminderHandler(d.Reminders, logger)
	pushHandler := NewPushHandler(d.Dispatcher, d.Subscriptions, logger)

	protected := router.Group("/api")
	protected.Use(requireUser())
	{
		bills := protected.Group("/bills")
		{
			bills.POST("", billHandler.CreateBill)
			bills.POST("/:id/pay", billHandler.PayBill)
			bills.POST("/:id/unpay", billHandler.UnpayBill)
		}
		protected.GET("/families/:id/bills", billHandler.ListFamilyBills)

		reminders := protected.Group("/reminders")
		{
			reminders.POST("", reminderHandler.CreateReminder)
			reminders.DELETE("/:id", reminderHandler.DeleteReminder)
		}

		protected.POST("/push-subscriptions", pushHandler.RegisterSubscription)
		protected.POST("/users/:id/notify", pushHandler.NotifyUser)
	}

	return router
}

// requireUser rejects requests without a user id header and stores it on the context.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func requestLogger(logger *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	}
}
