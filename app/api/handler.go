package api

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"llamarag/app/agent"
	"llamarag/types"
)

type RequestHandler struct {
	agent *agent.Agent
}

func NewRequestHandler(a *agent.Agent) *RequestHandler {
	return &RequestHandler{
		agent: a,
	}
}

// HandleRequest answers one question over JSON.
func (h *RequestHandler) HandleRequest(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	reply, err := h.agent.Answer(c.UserContext(), params.Prompt, params.K)
	if err != nil {
		return err
	}

	return c.JSON(&types.SearchResponse{
		Answer:    reply.Answer,
		Sources:   reply.Sources,
		Timestamp: time.Now(),
	})
}
