package server

import (
	"bytes"
	"embed"
	"encoding/base64"
	"errors"
	"html/template"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-notehub/gateway"
	"github.com/goliatone/go-notehub/note"
	"github.com/goliatone/go-notehub/prefetch"
	"github.com/goliatone/go-notehub/query"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var filterPage = template.Must(template.ParseFS(templateFS, "templates/filter.html"))

// StateEncoding encodes the snapshot embedded in filter pages.
var StateEncoding = base64.RawURLEncoding

// PagesController serves the filter pages. Each request prefetches the first
// page of its tag and ships the encoded query state with the response.
type PagesController struct {
	pages  Prefetcher
	logger *zap.Logger
}

func NewPagesController(pages Prefetcher, logger *zap.Logger) *PagesController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PagesController{pages: pages, logger: logger}
}

func (c *PagesController) RegisterRoutes(r fiber.Router) {
	r.Get("/notes", c.Index)
	r.Get("/notes/filter", c.Filter)
	r.Get("/notes/filter/*", c.Filter)
}

func (c *PagesController) Index(ctx *fiber.Ctx) error {
	return ctx.Redirect("/notes/filter/"+note.AllTags, fiber.StatusFound)
}

// Filter renders /notes/filter/<tag>. Clients asking for the snapshot content
// type get the raw snapshot and the resolved tag in a header.
func (c *PagesController) Filter(ctx *fiber.Ctx) error {
	segments := routeSegments(ctx.Params("*"))

	res, err := c.pages.Run(ctx.UserContext(), segments)
	if err != nil {
		return err
	}

	if ctx.Accepts(fiber.MIMETextHTML, gateway.SnapshotContentType) == gateway.SnapshotContentType {
		ctx.Set(gateway.TagHeader, res.Tag)
		ctx.Set(fiber.HeaderContentType, gateway.SnapshotContentType)
		return ctx.Send(res.Snapshot)
	}

	var buf bytes.Buffer
	if err := filterPage.Execute(&buf, newPageData(res)); err != nil {
		c.logger.Error("render filter page", zap.Error(err))
		return err
	}
	ctx.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return ctx.Send(buf.Bytes())
}

type pageData struct {
	Label      string
	Tags       []string
	Notes      []note.Note
	TotalPages int
	Error      string
	State      string
}

func newPageData(res prefetch.Result) pageData {
	label := res.Tag
	if label == "" {
		label = note.AllTags
	}

	tags := []string{note.AllTags}
	for _, t := range note.Tags() {
		tags = append(tags, string(t))
	}

	data := pageData{
		Label: label,
		Tags:  tags,
		State: StateEncoding.EncodeToString(res.Snapshot),
	}
	switch res.Entry.Status {
	case query.StatusSuccess:
		data.Notes = res.Entry.Data.Notes
		data.TotalPages = res.Entry.Data.TotalPages
	case query.StatusError:
		data.Error = errorMessage(res.Entry.Err)
	}
	return data
}

func routeSegments(rest string) []string {
	var out []string
	for _, part := range strings.Split(rest, "/") {
		if part == "" {
			continue
		}
		if unescaped, err := url.PathUnescape(part); err == nil {
			part = unescaped
		}
		out = append(out, part)
	}
	return out
}

func errorMessage(err error) string {
	if err == nil {
		return "request failed"
	}
	var gerr *goerrors.Error
	if errors.As(err, &gerr) {
		return gerr.Message
	}
	return err.Error()
}
