package api

import (
	"errors"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/calview"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/store"
	"github.com/abhisek/lessonsync/internal/surface"
)

const maxDays = 62

type CreateLessonRequest struct {
	StudentID    string    `json:"student_id" validate:"max=128"`
	StudentName  string    `json:"student_name" validate:"required,max=200"`
	StudentEmail string    `json:"student_email" validate:"omitempty,email"`
	Start        time.Time `json:"start" validate:"required"`
	DurationMin  int       `json:"duration_min" validate:"omitempty,min=5,max=720"`
	Notes        string    `json:"notes" validate:"max=10000"`
	Materials    string    `json:"materials" validate:"max=10000"`
}

type EditItemRequest struct {
	Title       *string `json:"title" validate:"omitempty,max=500"`
	Description *string `json:"description" validate:"omitempty,max=10000"`
	Location    *string `json:"location" validate:"omitempty,max=500"`

	StudentID    *string `json:"student_id" validate:"omitempty,max=128"`
	StudentName  *string `json:"student_name" validate:"omitempty,min=1,max=200"`
	StudentEmail *string `json:"student_email" validate:"omitempty,email"`
	Notes        *string `json:"notes" validate:"omitempty,max=10000"`
	Materials    *string `json:"materials" validate:"omitempty,max=10000"`

	Start       *time.Time `json:"start"`
	DurationMin *int       `json:"duration_min" validate:"omitempty,min=5,max=720"`
}

// DragRequest moves an item either to Start or by DeltaMin minutes.
type DragRequest struct {
	Start    *time.Time `json:"start" validate:"required_without=DeltaMin"`
	DeltaMin *int       `json:"delta_min" validate:"required_without=Start"`
}

type ImportRequest struct {
	StudentID    string `json:"student_id" validate:"max=128"`
	StudentName  string `json:"student_name" validate:"required,max=200"`
	StudentEmail string `json:"student_email" validate:"omitempty,email"`
}

// calendar serves the merged view. Query: from=YYYY-MM-DD (default: this
// week's Monday), days=N (default 7).
func (s *Server) calendar(c *fiber.Ctx) error {
	tr, err := s.rangeFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	v, err := s.surface.View(c.UserContext(), tr)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(v)
}

func (s *Server) createLesson(c *fiber.Ctx) error {
	var req CreateLessonRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	res := s.surface.CreateAt(c.UserContext(), req.Start, surface.CreateRequest{
		StudentID:    req.StudentID,
		StudentName:  req.StudentName,
		StudentEmail: req.StudentEmail,
		DurationMin:  req.DurationMin,
		Notes:        req.Notes,
		Materials:    req.Materials,
	})
	return s.result(c, res, fiber.StatusCreated)
}

func (s *Server) getItem(c *fiber.Ctx) error {
	item, err := s.item(c)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(item)
}

func (s *Server) editItem(c *fiber.Ctx) error {
	var req EditItemRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	item, err := s.item(c)
	if err != nil {
		return s.fail(c, err)
	}
	res := s.surface.EditItem(c.UserContext(), item, surface.Edit{
		Title:        req.Title,
		Description:  req.Description,
		Location:     req.Location,
		StudentID:    req.StudentID,
		StudentName:  req.StudentName,
		StudentEmail: req.StudentEmail,
		Notes:        req.Notes,
		Materials:    req.Materials,
		Start:        req.Start,
		DurationMin:  req.DurationMin,
	})
	return s.result(c, res, fiber.StatusOK)
}

func (s *Server) dragItem(c *fiber.Ctx) error {
	var req DragRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	if req.Start == nil && *req.DeltaMin == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid input: delta_min must not be zero")
	}
	item, err := s.item(c)
	if err != nil {
		return s.fail(c, err)
	}
	to := item.Start
	if req.Start != nil {
		to = *req.Start
	} else {
		to = to.Add(time.Duration(*req.DeltaMin) * time.Minute)
	}
	return s.result(c, s.surface.DragTo(c.UserContext(), item, to), fiber.StatusOK)
}

func (s *Server) deleteItem(c *fiber.Ctx) error {
	item, err := s.item(c)
	if err != nil {
		return s.fail(c, err)
	}
	return s.result(c, s.surface.DeleteItem(c.UserContext(), item), fiber.StatusOK)
}

func (s *Server) importItem(c *fiber.Ctx) error {
	var req ImportRequest
	if err := s.parse(c, &req); err != nil {
		return err
	}
	key, err := keyParam(c)
	if err != nil {
		return s.fail(c, err)
	}
	res := s.surface.Import(c.UserContext(), key, reconcile.ImportRequest{
		StudentID:    req.StudentID,
		StudentName:  req.StudentName,
		StudentEmail: req.StudentEmail,
	})
	return s.result(c, res, fiber.StatusCreated)
}

func (s *Server) recreateItem(c *fiber.Ctx) error {
	key, err := keyParam(c)
	if err != nil {
		return s.fail(c, err)
	}
	return s.result(c, s.surface.Recreate(c.UserContext(), key), fiber.StatusOK)
}

func (s *Server) sync(c *fiber.Ctx) error {
	tr, err := s.rangeFromQuery(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	sum := s.surface.Sync(c.UserContext(), tr)
	if !sum.OK {
		return c.Status(statusFor(sum.Err)).JSON(fiber.Map{"error": sum.Message, "summary": sum})
	}
	return c.JSON(sum)
}

func (s *Server) listNotices(c *fiber.Ctx) error {
	if s.notices == nil {
		return c.JSON(fiber.Map{"notices": []any{}})
	}
	return c.JSON(fiber.Map{"notices": s.notices.Recent()})
}

// parse decodes and validates the body. Its errors are rendered by the
// app's error handler.
func (s *Server) parse(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot parse JSON: "+err.Error())
	}
	if err := s.validate.Struct(dst); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid input: "+err.Error())
	}
	return nil
}

func (s *Server) item(c *fiber.Ctx) (calview.Item, error) {
	key, err := keyParam(c)
	if err != nil {
		return calview.Item{}, err
	}
	return s.surface.Resolve(c.UserContext(), key)
}

func keyParam(c *fiber.Ctx) (string, error) {
	key, err := url.PathUnescape(c.Params("key"))
	if err != nil {
		return "", &reconcile.ErrInvalidInput{Reason: "malformed item key", Err: err}
	}
	if _, _, err := calview.ParseKey(key); err != nil {
		return "", &reconcile.ErrInvalidInput{Reason: "malformed item key", Err: err}
	}
	return key, nil
}

func (s *Server) rangeFromQuery(c *fiber.Ctx) (calendar.TimeRange, error) {
	from := calview.WeekStart(time.Now(), s.loc)
	if q := c.Query("from"); q != "" {
		d, err := time.ParseInLocation(time.DateOnly, q, s.loc)
		if err != nil {
			return calendar.TimeRange{}, errors.New("from must be a date like 2024-02-05")
		}
		from = d
	}
	days := c.QueryInt("days", 7)
	if days < 1 || days > maxDays {
		return calendar.TimeRange{}, errors.New("days must be between 1 and 62")
	}
	return calendar.TimeRange{From: from, To: from.AddDate(0, 0, days)}, nil
}

func (s *Server) result(c *fiber.Ctx, res surface.Result, okStatus int) error {
	if res.OK {
		return c.Status(okStatus).JSON(res)
	}
	return c.Status(statusFor(res.Err)).JSON(fiber.Map{"error": res.Message})
}

func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": surface.Describe(err)})
}

// statusFor maps an error to an HTTP status.
func statusFor(err error) int {
	var (
		inv *reconcile.ErrInvalidInput
		lp  *reconcile.ErrLocalPersistence
	)
	switch {
	case err == nil:
		return fiber.StatusOK
	case errors.As(err, &inv):
		return fiber.StatusBadRequest
	case errors.As(err, &lp):
		return fiber.StatusInternalServerError
	case errors.Is(err, store.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, store.ErrVersionConflict):
		return fiber.StatusConflict
	}
	if !surface.IsCalendarError(err) {
		return fiber.StatusInternalServerError
	}
	switch calendar.Classify(err) {
	case calendar.KindUnauthenticated:
		return fiber.StatusUnauthorized
	case calendar.KindNotFound:
		return fiber.StatusNotFound
	case calendar.KindRateLimited:
		return fiber.StatusTooManyRequests
	case calendar.KindInvalidRequest:
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusServiceUnavailable
}
