// Package web provides the HTTP query and command surface over the payment workflow engine.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/dukex/payflow/pkg/engine"
	"github.com/dukex/payflow/pkg/models"
	"github.com/dukex/payflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	engine    *engine.Engine
	backend   persistence.Backend
	validator *validator.Validate
}

func NewAPIHandlers(
	workflows *engine.Engine,
	backend persistence.Backend,
	validate *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		engine:    workflows,
		backend:   backend,
		validator: validate,
	}
}

// Register mounts every payflow route on router.
func (h *APIHandlers) Register(router fiber.Router) {
	p := router.Group("/parties/:party")
	p.Get("/workflows", h.GetWorkflows)
	p.Get("/archive", h.GetArchivedWorkflows)
	p.Get("/accounts/:account/workflows", h.GetAccountWorkflows)
	p.Get("/units/:unit/workflows", h.GetUnitWorkflows)
	p.Get("/sources/:kind/:sourceId", h.GetWorkflowBySource)

	w := p.Group("/workflows/:id")
	w.Get("/", h.GetWorkflow)
	w.Get("/state", h.GetWorkflowState)
	w.Get("/type", h.GetWorkflowType)
	w.Get("/cheque", h.GetCheque)
	w.Get("/transfer", h.GetTransfer)
	w.Get("/cash", h.GetCash)
	w.Post("/expire", h.ExpireWorkflow)
	w.Delete("/", h.DeleteWorkflow)

	p.Post("/cheques/:action", h.ChequeCommand)
	p.Post("/transfers/:action", h.TransferCommand)
	p.Post("/cash/:action", h.CashCommand)

	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	var (
		category models.Category
		state    models.State
		err      error
	)

	if query := c.Query("category"); query != "" {
		category, err = models.ParseCategory(query)
		if err != nil {
			return badRequest(c, "Unknown category: "+query)
		}
	}

	if query := c.Query("state"); query != "" {
		state, err = models.ParseState(query)
		if err != nil {
			return badRequest(c, "Unknown state: "+query)
		}
	}

	ids, err := h.engine.List(c.Context(), c.Params("party"), category, state)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(listResponse(ids))
}

func (h *APIHandlers) GetArchivedWorkflows(c fiber.Ctx) error {
	ids, err := h.engine.ArchivedWorkflows(c.Context(), c.Params("party"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(listResponse(ids))
}

func (h *APIHandlers) GetAccountWorkflows(c fiber.Ctx) error {
	ids, err := h.engine.WorkflowsByAccount(c.Context(), c.Params("party"), c.Params("account"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(listResponse(ids))
}

func (h *APIHandlers) GetUnitWorkflows(c fiber.Ctx) error {
	ids, err := h.engine.WorkflowsByUnit(c.Context(), c.Params("party"), c.Params("unit"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(listResponse(ids))
}

func (h *APIHandlers) GetWorkflowBySource(c fiber.Ctx) error {
	item := models.SourceItem{
		Kind: models.SourceKind(c.Params("kind")),
		ID:   c.Params("sourceId"),
	}

	id, err := h.engine.WorkflowBySource(c.Context(), c.Params("party"), item)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"id": id})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	workflow, err := h.engine.LoadWorkflow(c.Context(), c.Params("party"), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(newWorkflowResponse(workflow))
}

func (h *APIHandlers) GetWorkflowState(c fiber.Ctx) error {
	state, err := h.engine.WorkflowState(c.Context(), c.Params("party"), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"state": state})
}

func (h *APIHandlers) GetWorkflowType(c fiber.Ctx) error {
	category, err := h.engine.WorkflowType(c.Context(), c.Params("party"), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(fiber.Map{"category": category})
}

func (h *APIHandlers) GetCheque(c fiber.Ctx) error {
	state, cheque, err := h.engine.InstantiateCheque(c.Context(), c.Params("party"), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(ChequeResponse{State: state, Cheque: cheque})
}

func (h *APIHandlers) GetTransfer(c fiber.Ctx) error {
	state, transfer, err := h.engine.InstantiateTransfer(c.Context(), c.Params("party"), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(TransferResponse{State: state, Transfer: transfer})
}

func (h *APIHandlers) GetCash(c fiber.Ctx) error {
	state, cash, err := h.engine.InstantiateCash(c.Context(), c.Params("party"), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(CashResponse{State: state, Cash: cash})
}

func (h *APIHandlers) ExpireWorkflow(c fiber.Ctx) error {
	owner, id := c.Params("party"), c.Params("id")

	err := h.engine.Expire(c.Context(), owner, id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return h.respond(c, fiber.StatusOK, owner, id)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	err := h.engine.PurgeWorkflow(c.Context(), c.Params("party"), c.Params("id"))
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ChequeCommand(c fiber.Ctx) error {
	var req ChequeCommandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, owner := c.Context(), c.Params("party")
	status := fiber.StatusOK

	var err error

	switch c.Params("action") {
	case "create":
		_, err = h.engine.CreateCheque(ctx, owner, req.Cheque)
		status = fiber.StatusCreated
	case "invoice":
		_, err = h.engine.CreateInvoice(ctx, owner, req.Cheque)
		status = fiber.StatusCreated
	case "import":
		_, err = h.engine.ImportCheque(ctx, owner, req.Cheque)
		status = fiber.StatusCreated
	case "receive":
		_, err = h.engine.ReceiveCheque(ctx, owner, req.Cheque, req.MessageID)
		status = fiber.StatusCreated
	case "receive-invoice":
		_, err = h.engine.ReceiveInvoice(ctx, owner, req.Cheque, req.MessageID)
		status = fiber.StatusCreated
	case "send":
		err = h.engine.SendCheque(ctx, owner, req.Cheque, req.Recipient)
	case "cancel":
		err = h.engine.CancelCheque(ctx, owner, req.Cheque)
	case "reject":
		err = h.engine.RejectCheque(ctx, owner, req.Cheque)
	case "clear":
		if req.Receipt == nil {
			return badRequest(c, "Receipt is required")
		}

		err = h.engine.ClearCheque(ctx, owner, req.Cheque, req.Receipt)
	case "finish":
		if req.Receipt == nil {
			return badRequest(c, "Receipt is required")
		}

		err = h.engine.FinishCheque(ctx, owner, req.Cheque, req.Receipt)
	case "deposit":
		if req.Account == "" {
			return badRequest(c, "Account is required")
		}

		err = h.engine.DepositCheque(ctx, owner, req.Account, req.Cheque)
	case "pay":
		if req.Account == "" {
			return badRequest(c, "Account is required")
		}

		err = h.engine.PayInvoice(ctx, owner, req.Account, req.Cheque)
	default:
		return notFound(c, "Unknown cheque command: "+c.Params("action"))
	}

	if err != nil {
		return handleEngineError(c, err)
	}

	return h.respondFor(c, status, owner, req.Cheque.SourceItem)
}

func (h *APIHandlers) TransferCommand(c fiber.Ctx) error {
	var req TransferCommandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, owner := c.Context(), c.Params("party")
	status := fiber.StatusOK

	var err error

	switch c.Params("action") {
	case "create":
		_, err = h.engine.CreateTransfer(ctx, owner, req.Transfer)
		status = fiber.StatusCreated
	case "convey":
		_, err = h.engine.ConveyTransfer(ctx, owner, req.Transfer)
		status = fiber.StatusCreated
	case "acknowledge":
		err = h.engine.AcknowledgeTransfer(ctx, owner, req.Transfer, req.Receipt)
	case "abort":
		err = h.engine.AbortTransfer(ctx, owner, req.Transfer)
	case "accept":
		err = h.engine.AcceptTransfer(ctx, owner, req.Transfer, req.Receipt)
	case "clear":
		err = h.engine.ClearTransfer(ctx, owner, req.Transfer, req.Receipt)
	case "complete":
		err = h.engine.CompleteTransfer(ctx, owner, req.Transfer, req.Receipt)
	default:
		return notFound(c, "Unknown transfer command: "+c.Params("action"))
	}

	if err != nil {
		return handleEngineError(c, err)
	}

	return h.respondFor(c, status, owner, req.Transfer.SourceItem)
}

func (h *APIHandlers) CashCommand(c fiber.Ctx) error {
	var req CashCommandRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	ctx, owner := c.Context(), c.Params("party")
	status := fiber.StatusOK

	var err error

	switch c.Params("action") {
	case "receive":
		_, err = h.engine.ReceiveCash(ctx, owner, req.Cash, req.MessageID)
		status = fiber.StatusCreated
	case "allocate":
		_, err = h.engine.AllocateCash(ctx, owner, req.Cash)
		status = fiber.StatusCreated
	case "send":
		err = h.engine.SendCash(ctx, owner, req.Cash)
	case "cancel":
		err = h.engine.CancelCash(ctx, owner, req.Cash)
	case "deposit":
		if req.Account == "" {
			return badRequest(c, "Account is required")
		}

		err = h.engine.DepositCash(ctx, owner, req.Account, req.Cash)
	default:
		return notFound(c, "Unknown cash command: "+c.Params("action"))
	}

	if err != nil {
		return handleEngineError(c, err)
	}

	return h.respondFor(c, status, owner, req.Cash.SourceItem)
}

// respondFor answers a command with the workflow that wraps the instrument's source item.
func (h *APIHandlers) respondFor(c fiber.Ctx, status int, owner string, sourceItem func(int) (models.SourceItem, error)) error {
	item, err := sourceItem(1)
	if err != nil {
		return internalError(c, err)
	}

	id, err := h.engine.WorkflowBySource(c.Context(), owner, item)
	if err != nil {
		return handleEngineError(c, err)
	}

	return h.respond(c, status, owner, id)
}

func (h *APIHandlers) respond(c fiber.Ctx, status int, owner, id string) error {
	state, err := h.engine.WorkflowState(c.Context(), owner, id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(status).JSON(CommandResponse{ID: id, State: state})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
	defer cancel()

	storageCheck := "ok"
	status := "healthy"
	message := "Payflow API is healthy"
	httpStatus := http.StatusOK

	if err := h.backend.HealthCheck(ctx); err != nil {
		storageCheck = err.Error()
		status = "unhealthy"
		message = "Payflow API is unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"storage": storageCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func listResponse(ids []string) WorkflowListResponse {
	if ids == nil {
		ids = []string{}
	}

	return WorkflowListResponse{Workflows: ids, TotalCount: len(ids)}
}
