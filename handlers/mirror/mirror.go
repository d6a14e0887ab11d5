package mirror

import (
	"errors"
	"log"

	"github.com/NagallaThanvi/unilink/model"
	"github.com/NagallaThanvi/unilink/services/mirror"
	"github.com/NagallaThanvi/unilink/utils/middleware"
	"github.com/NagallaThanvi/unilink/utils/query"
	"github.com/NagallaThanvi/unilink/utils/response"
	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson"
)

// MirrorHandler serves reads from the document mirror. Data may lag the
// relational store by one sync interval.
type MirrorHandler struct {
	store mirror.Store
}

// NewMirrorHandler accepts a nil store, in which case every endpoint
// responds 503.
func NewMirrorHandler(store mirror.Store) *MirrorHandler {
	return &MirrorHandler{store: store}
}

// ListUniversities handles GET /api/mirror/universities
func (h *MirrorHandler) ListUniversities(c *fiber.Ctx) error {
	if h.store == nil {
		return unavailable(c)
	}
	params, err := query.ParseList(c, nil, "")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWith(c, mirror.CollUniversities, *params.ID, &mirror.UniversityDoc{})
	}
	active, err := query.Bool(c, "is_active")
	if err != nil {
		return query.Reject(c, err)
	}

	filter := bson.M{}
	if active != nil {
		filter["is_active"] = *active
	}
	if code := c.Query("code"); code != "" {
		filter["code"] = code
	}

	docs := []mirror.UniversityDoc{}
	return h.respondWithPage(c, mirror.CollUniversities, filter, params, &docs)
}

// GetUniversity handles GET /api/mirror/universities/:id
func (h *MirrorHandler) GetUniversity(c *fiber.Ctx) error {
	if h.store == nil {
		return unavailable(c)
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, mirror.CollUniversities, id, &mirror.UniversityDoc{})
}

// ListMyConnections handles GET /api/mirror/connections. Only connections the
// caller is a party to are returned.
func (h *MirrorHandler) ListMyConnections(c *fiber.Ctx) error {
	if h.store == nil {
		return unavailable(c)
	}
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Authentication required")
	}
	params, err := query.ParseList(c, nil, "")
	if err != nil {
		return query.Reject(c, err)
	}
	status, err := query.OneOf(c, "status",
		string(model.ConnectionStatusPending), string(model.ConnectionStatusAccepted), string(model.ConnectionStatusRejected))
	if err != nil {
		return query.Reject(c, err)
	}

	filter := bson.M{"$or": []bson.M{
		{"requester_id": userID},
		{"recipient_id": userID},
	}}
	if status != "" {
		filter["status"] = status
	}

	docs := []mirror.ConnectionDoc{}
	return h.respondWithPage(c, mirror.CollConnections, filter, params, &docs)
}

// ListAdminUsers handles GET /api/mirror/admin/users
func (h *MirrorHandler) ListAdminUsers(c *fiber.Ctx) error {
	if h.store == nil {
		return unavailable(c)
	}
	params, err := query.ParseList(c, nil, "")
	if err != nil {
		return query.Reject(c, err)
	}
	if params.ID != nil {
		return h.respondWith(c, mirror.CollAdminUsers, *params.ID, &mirror.AdminUserDoc{})
	}
	role, err := query.OneOf(c, "role", model.ValidRoles...)
	if err != nil {
		return query.Reject(c, err)
	}
	universityID, err := query.Uint(c, "university_id")
	if err != nil {
		return query.Reject(c, err)
	}
	active, err := query.Bool(c, "is_active")
	if err != nil {
		return query.Reject(c, err)
	}

	filter := bson.M{}
	if role != "" {
		filter["role"] = role
	}
	if universityID != nil {
		filter["university_id"] = *universityID
	}
	if active != nil {
		filter["is_active"] = *active
	}

	docs := []mirror.AdminUserDoc{}
	return h.respondWithPage(c, mirror.CollAdminUsers, filter, params, &docs)
}

// GetAdminUser handles GET /api/mirror/admin/users/:id
func (h *MirrorHandler) GetAdminUser(c *fiber.Ctx) error {
	if h.store == nil {
		return unavailable(c)
	}
	id, err := query.PathID(c, "id")
	if err != nil {
		return response.InvalidID(c)
	}
	return h.respondWith(c, mirror.CollAdminUsers, id, &mirror.AdminUserDoc{})
}

func (h *MirrorHandler) respondWith(c *fiber.Ctx, collection string, id uint, out interface{}) error {
	if err := h.store.Get(c.UserContext(), collection, id, out); err != nil {
		if errors.Is(err, mirror.ErrNotFound) {
			return response.NotFound(c, "Document not found")
		}
		log.Printf("[MIRROR] get %s/%d: %v", collection, id, err)
		return response.InternalServerError(c, "Failed to read mirror")
	}
	return response.Success(c, out)
}

func (h *MirrorHandler) respondWithPage(c *fiber.Ctx, collection string, filter bson.M, params query.ListParams, out interface{}) error {
	total, err := h.store.Find(c.UserContext(), collection, mirror.Query{
		Filter: filter,
		Limit:  int64(params.Limit),
		Offset: int64(params.Offset),
	}, out)
	if err != nil {
		log.Printf("[MIRROR] find %s: %v", collection, err)
		return response.InternalServerError(c, "Failed to read mirror")
	}
	return response.Paginated(c, out, response.CalculatePagination(params.Offset, params.Limit, total))
}

func unavailable(c *fiber.Ctx) error {
	return response.ServiceUnavailable(c, "Document mirror is not configured")
}
