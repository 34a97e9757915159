package controller

import (
	"errors"

	"ai-chat-be/internal/dto"
	"ai-chat-be/internal/pkg/serverutils"
	"ai-chat-be/internal/service"
	"ai-chat-be/pkg/chat/session"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type IChatController interface {
	RegisterRoutes(r fiber.Router)
	ListSessions(ctx *fiber.Ctx) error
	SelectSession(ctx *fiber.Ctx) error
	NewChat(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
	Timeline(ctx *fiber.Ctx) error
	SendMessage(ctx *fiber.Ctx) error
	Regenerate(ctx *fiber.Ctx) error
	Translate(ctx *fiber.Ctx) error
	Speech(ctx *fiber.Ctx) error
	Summary(ctx *fiber.Ctx) error
}

type chatController struct {
	service service.IChatService
}

func NewChatController(service service.IChatService) IChatController {
	return &chatController{service: service}
}

func (c *chatController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/chat/v1")
	h.Get("/sessions", c.ListSessions)
	h.Post("/sessions/new", c.NewChat)
	h.Post("/sessions/:id/select", c.SelectSession)
	h.Delete("/sessions/:id", c.DeleteSession)
	h.Get("/timeline", c.Timeline)
	h.Post("/messages", c.SendMessage)
	h.Post("/regenerate", c.Regenerate)
	h.Post("/messages/:id/translate", c.Translate)
	h.Post("/messages/:id/speech", c.Speech)
	h.Post("/summary", c.Summary)
}

// toHTTPError maps orchestrator errors onto status codes for the error middleware.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, service.ErrMessageNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrTurnInProgress),
		errors.Is(err, service.ErrHistoryLoading),
		errors.Is(err, service.ErrSessionDeleting):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNoActiveSession),
		errors.Is(err, service.ErrNothingToRegenerate),
		errors.Is(err, service.ErrNothingToSummarize):
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrTurnFailed), errors.Is(err, service.ErrInvalidAudio):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	}
	return err
}

func parseSessionId(ctx *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid session id")
	}
	return id, nil
}

func (c *chatController) ListSessions(ctx *fiber.Ctx) error {
	var req dto.ListSessionsRequest
	if err := ctx.QueryParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	if ctx.QueryBool("refresh") {
		if err := c.service.RefreshSessions(ctx.UserContext()); err != nil {
			return toHTTPError(err)
		}
	}

	res := c.service.ListSessions(ctx.UserContext(), &req)
	return ctx.JSON(serverutils.SuccessResponse("Success list sessions", res))
}

func (c *chatController) SelectSession(ctx *fiber.Ctx) error {
	id, err := parseSessionId(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.SelectSession(ctx.UserContext(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success select session", res))
}

func (c *chatController) NewChat(ctx *fiber.Ctx) error {
	res := c.service.NewChat(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("Success start new chat", res))
}

func (c *chatController) DeleteSession(ctx *fiber.Ctx) error {
	id, err := parseSessionId(ctx)
	if err != nil {
		return err
	}

	if err := c.service.DeleteSession(ctx.UserContext(), id); err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse[any]("Success delete session", nil))
}

func (c *chatController) Timeline(ctx *fiber.Ctx) error {
	if err := c.service.LoadHistory(ctx.UserContext()); err != nil {
		return toHTTPError(err)
	}
	res := c.service.Snapshot(ctx.UserContext())
	return ctx.JSON(serverutils.SuccessResponse("Success get timeline", res))
}

func (c *chatController) SendMessage(ctx *fiber.Ctx) error {
	var req dto.SendMessageRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.SendMessage(ctx.UserContext(), &req)
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success send message", res))
}

func (c *chatController) Regenerate(ctx *fiber.Ctx) error {
	var req dto.RegenerateRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Regenerate(ctx.UserContext(), &req)
	if err != nil {
		return toHTTPError(err)
	}

	return ctx.JSON(serverutils.SuccessResponse("Success regenerate reply", res))
}

func (c *chatController) Translate(ctx *fiber.Ctx) error {
	res, err := c.service.Translate(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success translate message", res))
}

func (c *chatController) Speech(ctx *fiber.Ctx) error {
	res, err := c.service.Speak(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success synthesize speech", res))
}

func (c *chatController) Summary(ctx *fiber.Ctx) error {
	res, err := c.service.Summarize(ctx.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success summarize conversation", res))
}
