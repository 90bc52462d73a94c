package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"household_scheduler/internal/app"
	"household_scheduler/internal/domain/recurrence"
)

type ReminderHandler struct {
	reminders *app.ReminderService
	logger    *logrus.Entry
}

func NewReminderHandler(reminders *app.ReminderService, logger *logrus.Entry) *ReminderHandler {
	return &ReminderHandler{reminders: reminders, logger: logger}
}

type createReminderRequest struct {
	FamilyID    string           `json:"familyId" binding:"required"`
	Title       string           `json:"title" binding:"required"`
	Description *string          `json:"description"`
	RemindAt    time.Time        `json:"remindAt" binding:"required"`
	Recurrence  *recurrence.Rule `json:"recurrence"`
	AssigneeIDs []string         `json:"assigneeIds"`
}

func (h *ReminderHandler) CreateReminder(c *gin.Context) {
	var req createReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	r, err := h.reminders.Create(c.Request.Context(), app.NewReminder{
		FamilyID:    req.FamilyID,
		Title:       req.Title,
		Description: req.Description,
		RemindAt:    req.RemindAt,
		Recurrence:  req.Recurrence,
		CreatedByID: currentUserID(c),
		AssigneeIDs: req.AssigneeIDs,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":             r.ID,
		"title":          r.Title,
		"remindAt":       r.RemindAt,
		"nextOccurrence": r.NextOccurrence,
		"source":         r.Source,
	})
}

func (h *ReminderHandler) DeleteReminder(c *gin.Context) {
	if err := h.reminders.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
