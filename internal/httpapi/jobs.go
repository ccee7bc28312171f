package httpapi

import (
	"github.com/gofiber/fiber/v2"
)

type updateJobRequest struct {
	Enabled *bool   `json:"enabled"`
	Spec    *string `json:"spec"`
}

func (s *Server) listJobs(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return unavailable("scheduler is not running")
	}
	return c.JSON(s.deps.Scheduler.Jobs())
}

func (s *Server) getJob(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return unavailable("scheduler is not running")
	}
	status, err := s.deps.Scheduler.Job(c.Params("job"))
	if err != nil {
		return err
	}
	return c.JSON(status)
}

// updateJob reschedules and enables or disables a job. Omitted fields are
// left unchanged.
func (s *Server) updateJob(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return unavailable("scheduler is not running")
	}
	var req updateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest("invalid request body")
	}

	name := c.Params("job")
	if _, err := s.deps.Scheduler.Job(name); err != nil {
		return err
	}
	if req.Spec != nil {
		if err := s.deps.Scheduler.Reschedule(name, *req.Spec); err != nil {
			return badRequest(err.Error())
		}
	}
	if req.Enabled != nil {
		var err error
		if *req.Enabled {
			err = s.deps.Scheduler.Enable(name)
		} else {
			err = s.deps.Scheduler.Disable(name)
		}
		if err != nil {
			return err
		}
	}

	status, err := s.deps.Scheduler.Job(name)
	if err != nil {
		return err
	}
	return c.JSON(status)
}

func (s *Server) runJob(c *fiber.Ctx) error {
	if s.deps.Scheduler == nil {
		return unavailable("scheduler is not running")
	}
	name := c.Params("job")
	if err := s.deps.Scheduler.RunNow(name); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"job": name, "status": "started"})
}
