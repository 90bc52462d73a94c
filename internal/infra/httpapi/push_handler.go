package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"household_scheduler/internal/app"
	"household_scheduler/internal/domain/push"
)

type PushHandler struct {
	dispatcher    app.Dispatcher
	subscriptions push.Repository
	logger        *logrus.Entry
}

func NewPushHandler(d app.Dispatcher, subs push.Repository, logger *logrus.Entry) *PushHandler {
	return &PushHandler{dispatcher: d, subscriptions: subs, logger: logger}
}

// registerSubscriptionRequest mirrors the browser's PushSubscription.toJSON().
type registerSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" binding:"required"`
		Auth   string `json:"auth" binding:"required"`
	} `json:"keys"`
}

func (h *PushHandler) RegisterSubscription(c *gin.Context) {
	var req registerSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub := &push.Subscription{
		UserID:   currentUserID(c),
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	}
	if err := h.subscriptions.Upsert(c.Request.Context(), sub); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.WithField("user_id", sub.UserID).WithField("subscription_id", sub.ID).Info("Push subscription registered")
	c.JSON(http.StatusCreated, gin.H{"id": sub.ID})
}

type notifyRequest struct {
	Title string           `json:"title" binding:"required"`
	Body  string           `json:"body"`
	Data  push.PayloadData `json:"data"`
}

// NotifyUser sends an ad-hoc payload to every device of the path user.
func (h *PushHandler) NotifyUser(c *gin.Context) {
	var req notifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.dispatcher.Dispatch(c.Request.Context(), c.Param("id"), push.Payload{
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
