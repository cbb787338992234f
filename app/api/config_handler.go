package api

import (
	"github.com/gofiber/fiber/v2"

	"llamarag/app/agent"
	"llamarag/types"
)

// ConfigHandler reads and changes generation settings at runtime.
type ConfigHandler struct {
	agent *agent.Agent
}

func NewConfigHandler(a *agent.Agent) *ConfigHandler {
	return &ConfigHandler{
		agent: a,
	}
}

func (h *ConfigHandler) HandleGetConfig(c *fiber.Ctx) error {
	return c.JSON(h.agent.Settings())
}

func (h *ConfigHandler) HandleSetConfig(c *fiber.Ctx) error {
	var params types.ConfigParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if params.TopK == 0 && params.MaxTokens == 0 {
		return ErrBadRequest()
	}

	resp := h.agent.SetSettings(types.Settings{TopK: params.TopK, MaxTokens: params.MaxTokens})
	return c.JSON(resp)
}
