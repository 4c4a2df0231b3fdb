package web

import (
	"time"

	"github.com/dukex/payflow/pkg/models"
)

// ChequeCommandRequest is the body of every cheque and invoice command. Which fields are
// required depends on the command.
type ChequeCommandRequest struct {
	Cheque    *models.Cheque  `json:"cheque"               validate:"required"`
	Receipt   *models.Receipt `json:"receipt,omitempty"`
	Account   string          `json:"account,omitempty"`
	Recipient string          `json:"recipient,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
}

// TransferCommandRequest is the body of every transfer command.
type TransferCommandRequest struct {
	Transfer *models.Transfer `json:"transfer"          validate:"required"`
	Receipt  *models.Receipt  `json:"receipt,omitempty"`
}

// CashCommandRequest is the body of every cash command.
type CashCommandRequest struct {
	Cash      *models.Cash `json:"cash"                 validate:"required"`
	Account   string       `json:"account,omitempty"`
	MessageID string       `json:"message_id,omitempty"`
}

type WorkflowListResponse struct {
	Workflows  []string `json:"workflows"`
	TotalCount int      `json:"total_count"`
}

type CommandResponse struct {
	ID    string       `json:"id"`
	State models.State `json:"state"`
}

// WorkflowResponse is a workflow plus the display event chosen for its creation.
type WorkflowResponse struct {
	*models.Workflow

	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func newWorkflowResponse(workflow *models.Workflow) WorkflowResponse {
	response := WorkflowResponse{Workflow: workflow}

	for _, eventType := range []models.EventType{models.EventCreate, models.EventConvey} {
		if event, ok := models.SelectEvent(workflow.Events, eventType); ok {
			created := event.Time
			response.CreatedAt = &created

			break
		}
	}

	return response
}

type ChequeResponse struct {
	State  models.State   `json:"state"`
	Cheque *models.Cheque `json:"cheque"`
}

type TransferResponse struct {
	State    models.State     `json:"state"`
	Transfer *models.Transfer `json:"transfer"`
}

type CashResponse struct {
	State models.State `json:"state"`
	Cash  *models.Cash `json:"cash"`
}
