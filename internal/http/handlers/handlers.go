package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"compare/internal/http/middleware"
	"compare/internal/infra/logging"
	"compare/internal/infra/worker"
	"compare/internal/service"
)

// Handlers bundles the HTTP entrypoints and the services they call.
type Handlers struct {
	Compare *service.CompareService
	PDF     *service.PDFService
	Pool    *worker.Pool
}

func New(cmp *service.CompareService, pdf *service.PDFService, pool *worker.Pool) *Handlers {
	return &Handlers{Compare: cmp, PDF: pdf, Pool: pool}
}

// parseBody accepts JSON, urlencoded and multipart bodies. An empty body leaves v untouched.
func parseBody(c *fiber.Ctx, v any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(v); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return nil
}

// HandleAlgorithms compares two images with the method named in ?method=.
func (h *Handlers) HandleAlgorithms(c *fiber.Ctx) error {
	var in service.CompareInput
	if err := parseBody(c, &in); err != nil {
		return err
	}

	images, err := h.Compare.Compare(c.UserContext(), c.Query("method"), in)
	if err != nil {
		return err
	}

	logging.Info("Comparison served", "method", c.Query("method"), "request_id", middleware.RequestID(c))
	return c.JSON(fiber.Map{"images": images})
}

type convertRequest struct {
	PDF  string    `json:"pdf" form:"pdf"`
	Page pageParam `json:"page" form:"-"`
}

// pageParam holds the page as sent. JSON clients send it as a number or a string.
type pageParam struct {
	raw string
	set bool
}

func (p *pageParam) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*p = pageParam{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*p = pageParam{raw: s, set: true}
		return nil
	}
	*p = pageParam{raw: string(b), set: true}
	return nil
}

// requestedPage returns the 1-based page asked for, 1 when absent.
func requestedPage(c *fiber.Ctx, req convertRequest) (int, error) {
	p := req.Page
	if !p.set && !c.Is("json") {
		if v := c.FormValue("page"); v != "" {
			p = pageParam{raw: v, set: true}
		}
	}
	if !p.set {
		return 1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(p.raw))
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid page: "+strconv.Quote(p.raw))
	}
	return n, nil
}

// HandleConvertPDF renders one page (default 1) of a base64 PDF.
func (h *Handlers) HandleConvertPDF(c *fiber.Ctx) error {
	var req convertRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	page, err := requestedPage(c, req)
	if err != nil {
		return err
	}

	img, err := h.PDF.ConvertPage(c.UserContext(), req.PDF, page)
	if err != nil {
		return err
	}

	logging.Info("PDF page rendered", "page", page, "request_id", middleware.RequestID(c))
	return c.JSON(fiber.Map{"image": img})
}

// HandleConvertPDFPages renders every page of a base64 PDF.
func (h *Handlers) HandleConvertPDFPages(c *fiber.Ctx) error {
	var req convertRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	images, err := h.PDF.ConvertAll(c.UserContext(), req.PDF)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"images": images})
}

// HandleWorkerStats exposes the execution pool's capacity and counters.
func (h *Handlers) HandleWorkerStats(c *fiber.Ctx) error {
	return c.JSON(h.Pool.Stats())
}
