package quiz

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/emandor/quizdesk_service/internal/apierr"
	"github.com/emandor/quizdesk_service/internal/middleware"
	"github.com/emandor/quizdesk_service/internal/model"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func mustUserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(middleware.UserIDKey).(string)
	return uid
}

func quizIDParam(c *fiber.Ctx) (string, error) {
	id := c.Params("quizId")
	if _, err := uuid.Parse(id); err != nil {
		return "", apierr.Validation([]apierr.FieldError{{Field: "quizId", Message: "Invalid quiz ID"}})
	}
	return id, nil
}

type responsesBody struct {
	Responses model.Responses `json:"responses"`
}

func parseResponses(c *fiber.Ctx) (model.Responses, error) {
	var body responsesBody
	if err := c.BodyParser(&body); err != nil {
		return nil, apierr.BadRequest("Invalid request body")
	}
	if len(body.Responses) == 0 {
		return nil, apierr.Validation([]apierr.FieldError{{Field: "responses", Message: "At least one response is required"}})
	}
	for _, r := range body.Responses {
		if r.QuestionID == "" {
			return nil, apierr.Validation([]apierr.FieldError{{Field: "responses", Message: "Question ID is required"}})
		}
		if r.SelectedOptionKey == "" {
			return nil, apierr.Validation([]apierr.FieldError{{Field: "responses", Message: "Option key is required"}})
		}
		if r.Answer == "" {
			return nil, apierr.Validation([]apierr.FieldError{{Field: "responses", Message: "Answer is required"}})
		}
	}
	return body.Responses, nil
}

// List handles GET /quizzes.
func (h *Handler) List(c *fiber.Ctx) error {
	items, err := h.svc.ListAccessible(c.Context(), mustUserID(c))
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, "Quizzes retrieved successfully", items)
}

// Detail handles GET /quizzes/:quizId.
func (h *Handler) Detail(c *fiber.Ctx) error {
	quizID, err := quizIDParam(c)
	if err != nil {
		return err
	}
	detail, err := h.svc.GetDetail(c.Context(), mustUserID(c), quizID)
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, "Quiz retrieved successfully", detail)
}

// SaveDraft handles POST /quizzes/:quizId/draft.
func (h *Handler) SaveDraft(c *fiber.Ctx) error {
	quizID, err := quizIDParam(c)
	if err != nil {
		return err
	}
	responses, err := parseResponses(c)
	if err != nil {
		return err
	}
	id, err := h.svc.SaveDraft(c.Context(), mustUserID(c), quizID, responses, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, "Draft saved successfully", fiber.Map{
		"submissionId": id,
	})
}

// Submit handles POST /quizzes/:quizId/submit.
func (h *Handler) Submit(c *fiber.Ctx) error {
	quizID, err := quizIDParam(c)
	if err != nil {
		return err
	}
	responses, err := parseResponses(c)
	if err != nil {
		return err
	}
	res, err := h.svc.Submit(c.Context(), mustUserID(c), quizID, responses, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, "Quiz submitted successfully", res)
}

// Result handles GET /quizzes/:quizId/result.
func (h *Handler) Result(c *fiber.Ctx) error {
	quizID, err := quizIDParam(c)
	if err != nil {
		return err
	}
	res, err := h.svc.GetResult(c.Context(), mustUserID(c), quizID)
	if err != nil {
		return err
	}
	return middleware.Success(c, fiber.StatusOK, "Result retrieved successfully", res)
}
