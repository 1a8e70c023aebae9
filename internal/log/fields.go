package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldRoomID      = "room_id"
	FieldMemberID    = "member_id"
	FieldExpenseID   = "expense_id"
	FieldAmountUnits = "amount_units"
	FieldFrom        = "from"
	FieldTo          = "to"
	FieldStatus      = "status"
	FieldNettingMode = "netting_mode"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentSettlement = "settlement"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWorker     = "worker"
	ComponentAuth       = "auth"
)
