package server

import (
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-notehub/note"
	"github.com/google/uuid"
)

// NotesController serves the JSON notes API.
type NotesController struct {
	notes NotesService
}

func NewNotesController(notes NotesService) *NotesController {
	return &NotesController{notes: notes}
}

func (c *NotesController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/notes")
	h.Get("", c.List)
	h.Post("", c.Create)
	h.Get(":id", c.Show)
}

// List answers GET /notes?page&perPage&search&tag.
func (c *NotesController) List(ctx *fiber.Ctx) error {
	filter := note.Filter{
		Page:    ctx.QueryInt("page", 1),
		PerPage: ctx.QueryInt("perPage", note.DefaultPerPage),
		Search:  ctx.Query("search"),
		Tag:     ctx.Query("tag"),
	}

	page, err := c.notes.List(ctx.UserContext(), filter)
	if err != nil {
		return err
	}
	return ctx.JSON(page)
}

func (c *NotesController) Create(ctx *fiber.Ctx) error {
	var draft note.Draft
	if err := ctx.BodyParser(&draft); err != nil {
		return badRequest("invalid request body")
	}

	created, err := c.notes.Create(ctx.UserContext(), draft)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(created)
}

func (c *NotesController) Show(ctx *fiber.Ctx) error {
	id, err := uuid.Parse(ctx.Params("id"))
	if err != nil {
		return notFound("note not found")
	}

	n, err := c.notes.Get(ctx.UserContext(), id)
	if err != nil {
		return err
	}
	return ctx.JSON(n)
}
