package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"household_scheduler/internal/app"
	"household_scheduler/internal/domain/bill"
	"household_scheduler/internal/domain/recurrence"
	"household_scheduler/internal/domain/reminder"
)

const dateLayout = "2006-01-02"

type BillHandler struct {
	bills    *app.BillLifecycleManager
	billRepo bill.Repository
	logger   *logrus.Entry
	now      func() time.Time
}

func NewBillHandler(bills *app.BillLifecycleManager, billRepo bill.Repository, logger *logrus.Entry, now func() time.Time) *BillHandler {
	return &BillHandler{bills: bills, billRepo: billRepo, logger: logger, now: now}
}

type createBillRequest struct {
	FamilyID           string          `json:"familyId" binding:"required"`
	Name               string          `json:"name" binding:"required"`
	Description        *string         `json:"description"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency" binding:"required"`
	DueDate            string          `json:"dueDate" binding:"required"`
	Frequency          string          `json:"frequency" binding:"required"`
	RecurrenceEndDate  *string         `json:"recurrenceEndDate"`
	ReminderDaysBefore int             `json:"reminderDaysBefore"`
	AssigneeIDs        []string        `json:"assigneeIds"`
}

type billResponse struct {
	ID                 string     `json:"id"`
	FamilyID           string     `json:"familyId"`
	Name               string     `json:"name"`
	Description        *string    `json:"description,omitempty"`
	Amount             string     `json:"amount"`
	Currency           string     `json:"currency"`
	DueDate            string     `json:"dueDate"`
	Frequency          string     `json:"frequency"`
	RecurrenceEndDate  *string    `json:"recurrenceEndDate,omitempty"`
	Status             string     `json:"status"`
	PaidAt             *time.Time `json:"paidAt,omitempty"`
	PaidByID           *string    `json:"paidById,omitempty"`
	ReminderID         *string    `json:"reminderId,omitempty"`
	ReminderDaysBefore int        `json:"reminderDaysBefore"`
}

func toBillResponse(b *bill.Bill, now time.Time) billResponse {
	resp := billResponse{
		ID:                 b.ID,
		FamilyID:           b.FamilyID,
		Name:               b.Name,
		Description:        b.Description,
		Amount:             b.Amount.StringFixed(2),
		Currency:           b.Currency,
		DueDate:            b.DueDate.Format(dateLayout),
		Frequency:          string(b.Frequency),
		Status:             string(b.EffectiveStatus(now)),
		PaidAt:             b.PaidAt,
		PaidByID:           b.PaidByID,
		ReminderID:         b.ReminderID,
		ReminderDaysBefore: b.ReminderDaysBefore,
	}
	if b.RecurrenceEndDate != nil {
		end := b.RecurrenceEndDate.Format(dateLayout)
		resp.RecurrenceEndDate = &end
	}
	return resp
}

func (h *BillHandler) CreateBill(c *gin.Context) {
	var req createBillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	due, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "dueDate must be YYYY-MM-DD"})
		return
	}
	var end *time.Time
	if req.RecurrenceEndDate != nil {
		parsed, err := time.Parse(dateLayout, *req.RecurrenceEndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "recurrenceEndDate must be YYYY-MM-DD"})
			return
		}
		end = &parsed
	}

	b, err := h.bills.Create(c.Request.Context(), app.NewBill{
		FamilyID:           req.FamilyID,
		Name:               req.Name,
		Description:        req.Description,
		Amount:             req.Amount,
		Currency:           req.Currency,
		DueDate:            due,
		Frequency:          recurrence.Frequency(req.Frequency),
		RecurrenceEndDate:  end,
		ReminderDaysBefore: req.ReminderDaysBefore,
		CreatedByID:        currentUserID(c),
		AssigneeIDs:        req.AssigneeIDs,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toBillResponse(b, h.now()))
}

func (h *BillHandler) PayBill(c *gin.Context) {
	b, err := h.bills.Pay(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBillResponse(b, h.now()))
}

func (h *BillHandler) UnpayBill(c *gin.Context) {
	b, err := h.bills.Unpay(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toBillResponse(b, h.now()))
}

func (h *BillHandler) ListFamilyBills(c *gin.Context) {
	bills, err := h.billRepo.ListByFamily(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	now := h.now()
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillResponse(b, now))
	}
	c.JSON(http.StatusOK, out)
}

// respondError maps domain errors to statuses; anything unrecognised is logged and hidden.
func respondError(c *gin.Context, logger *logrus.Entry, err error) {
	switch {
	case errors.Is(err, bill.ErrNotFound), errors.Is(err, reminder.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrBillAlreadyPaid), errors.Is(err, reminder.ErrResourceOwned):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, app.ErrInvalidBill), errors.Is(err, app.ErrInvalidReminder):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
