package search

import (
	"errors"
	"log"
	"strings"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/search"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
)

// SearchHandler runs full text queries against the search index
type SearchHandler struct {
	engine search.Engine
}

func NewSearchHandler(engine search.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// Search handles GET /api/search?q=&type=profiles|jobs. Profiles can be
// narrowed with university_id, is_mentor and graduation_year; jobs with
// university_id and job_type.
func (h *SearchHandler) Search(c *fiber.Ctx) error {
	if h.engine == nil {
		return response.ServiceUnavailable(c, "Search is not configured")
	}

	index, err := search.IndexForType(c.Query("type"))
	if err != nil {
		if errors.Is(err, search.ErrUnknownIndex) {
			return response.BadRequest(c, "type must be one of: profiles, jobs")
		}
		return response.InternalServerError(c, "Failed to resolve search index")
	}
	params, err := query.ParseList(c, nil, "")
	if err != nil {
		return query.Reject(c, err)
	}

	filters := map[string]interface{}{}
	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}
	if universityID != nil {
		filters["university_id"] = *universityID
	}

	switch index {
	case search.IdxProfiles:
		mentor, err := query.Bool(c, "is_mentor")
		if err != nil {
			return query.Reject(c, err)
		}
		if mentor != nil {
			filters["is_mentor"] = *mentor
		}
		year, err := query.Int(c, "graduation_year")
		if err != nil {
			return query.Reject(c, err)
		}
		if year != nil {
			filters["graduation_year"] = *year
		}
	case search.IdxJobs:
		jobType, err := query.OneOf(c, "job_type", model.JobTypeFullTime, model.JobTypePartTime,
			model.JobTypeInternship, model.JobTypeContract, model.JobTypeRemote)
		if err != nil {
			return query.Reject(c, err)
		}
		if jobType != "" {
			filters["type"] = jobType
		}
	}

	result, err := h.engine.Search(c.UserContext(), search.Query{
		Index:   index,
		Text:    strings.TrimSpace(c.Query("q")),
		Filters: filters,
		Limit:   params.Limit,
		Offset:  params.Offset,
	})
	if err != nil {
		log.Printf("[SEARCH] %s %q: %v", index, c.Query("q"), err)
		return response.BadGateway(c, "Search backend error")
	}

	return response.Paginated(c, result.Hits, response.CalculatePagination(params.Offset, params.Limit, result.Total))
}
