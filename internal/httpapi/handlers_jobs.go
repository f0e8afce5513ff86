package httpapi

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"codedox/internal/apperr"
	"codedox/internal/jobs"
	"codedox/internal/store"
)

func registerJobRoutes(g fiber.Router) {
	g.Post("/crawl", createCrawlHandler)
	g.Get("/jobs", listJobsHandler)
	g.Get("/jobs/:id", getJobHandler)
	g.Post("/jobs/:id/cancel", cancelJobHandler)
	g.Post("/jobs/bulk-cancel", bulkCancelJobsHandler)
	g.Post("/jobs/:id/resume", resumeJobHandler)
}

type createCrawlRequest struct {
	Name                string   `json:"name"`
	StartURLs           []string `json:"startUrls"`
	MaxDepth            int      `json:"maxDepth"`
	DomainFilter        string   `json:"domainFilter"`
	IncludePatterns     []string `json:"includePatterns"`
	ExcludePatterns     []string `json:"excludePatterns"`
	MaxConcurrentCrawls int      `json:"maxConcurrentCrawls"`
	MaxPages            int      `json:"maxPages"`
}

func createCrawlHandler(c *fiber.Ctx) error {
	mgr := c.Locals("manager").(*jobs.Manager)

	var req createCrawlRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation("invalid request body", err))
	}

	job, err := mgr.CreateJob(c.Context(), jobs.CreateParams{
		Name:                req.Name,
		StartURLs:           req.StartURLs,
		MaxDepth:            req.MaxDepth,
		DomainFilter:        req.DomainFilter,
		IncludePatterns:     req.IncludePatterns,
		ExcludePatterns:     req.ExcludePatterns,
		MaxConcurrentCrawls: req.MaxConcurrentCrawls,
		MaxPages:            req.MaxPages,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(job)
}

func listJobsHandler(c *fiber.Ctx) error {
	mgr := c.Locals("manager").(*jobs.Manager)

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)
	status := c.Query("status")

	list, err := mgr.List(c.Context(), store.JobListFilter{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"jobs": list})
}

func getJobHandler(c *fiber.Ctx) error {
	mgr := c.Locals("manager").(*jobs.Manager)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid job id", err))
	}

	job, err := mgr.Get(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(job)
}

func cancelJobHandler(c *fiber.Ctx) error {
	mgr := c.Locals("manager").(*jobs.Manager)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid job id", err))
	}

	cancelled, err := mgr.Cancel(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"cancelled": cancelled})
}

func bulkCancelJobsHandler(c *fiber.Ctx) error {
	mgr := c.Locals("manager").(*jobs.Manager)

	var req struct {
		IDs []string `json:"ids"`
	}
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, apperr.Validation("invalid request body", err))
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, s := range req.IDs {
		id, err := uuid.Parse(s)
		if err != nil {
			return writeError(c, apperr.Validation("invalid job id: "+s, err))
		}
		ids = append(ids, id)
	}

	n, err := mgr.BulkCancel(c.Context(), ids)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"cancelled": n})
}

func resumeJobHandler(c *fiber.Ctx) error {
	mgr := c.Locals("manager").(*jobs.Manager)

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid job id", err))
	}

	job, resumeURLs, err := mgr.Resume(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"job": job, "resumeUrls": resumeURLs})
}
