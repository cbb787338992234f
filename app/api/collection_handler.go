package api

import (
	"github.com/gofiber/fiber/v2"

	"llamarag/app/agent"
	"llamarag/store"
	"llamarag/types"
)

const defaultNResults = 5

// CollectionHandler exposes the raw collection contract for administration.
type CollectionHandler struct {
	collection store.Collection
	agent      *agent.Agent
}

func NewCollectionHandler(a *agent.Agent) *CollectionHandler {
	return &CollectionHandler{
		collection: a.Collection(),
		agent:      a,
	}
}

func (h *CollectionHandler) HandleInfo(c *fiber.Ctx) error {
	info, err := h.collection.Info(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(info)
}

func (h *CollectionHandler) HandleAdd(c *fiber.Ctx) error {
	var params types.AddParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if err := h.collection.Add(c.UserContext(), params.Documents, params.Metadatas, params.IDs); err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"added": len(params.Documents)})
}

func (h *CollectionHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.CollectionQueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	if params.NResults == 0 {
		params.NResults = defaultNResults
	}

	res, err := h.collection.Query(c.UserContext(), params.QueryTexts, params.NResults, params.Where)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *CollectionHandler) HandleDelete(c *fiber.Ctx) error {
	var params types.DeleteParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if err := h.collection.Delete(c.UserContext(), params.IDs, params.Where); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *CollectionHandler) HandleUpdate(c *fiber.Ctx) error {
	var params types.UpdateParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	if err := h.collection.Update(c.UserContext(), params.IDs, params.Documents, params.Metadatas); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (h *CollectionHandler) HandleReset(c *fiber.Ctx) error {
	if err := h.collection.Reset(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// HandleMirror lists chunk texts ingested by this process, for debugging.
func (h *CollectionHandler) HandleMirror(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"chunks": h.agent.Mirror()})
}
