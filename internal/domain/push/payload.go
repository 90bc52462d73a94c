package push

// Payload is the JSON document delivered to devices.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Data  PayloadData `json:"data"`
}

type PayloadData struct {
	Type             string  `json:"type"`
	ReminderID       string  `json:"reminderId,omitempty"`
	BillID           string  `json:"billId,omitempty"`
	Source           string  `json:"source,omitempty"`
	SourceEntityType *string `json:"sourceEntityType,omitempty"`
	SourceEntityID   *string `json:"sourceEntityId,omitempty"`
}

const (
	PayloadTypeReminder = "reminder"
	PayloadTypeBill     = "bill"
)
