// Package httpapi composes the Fiber application: route registration,
// authentication middleware, and RFC 9457 problem-details error responses.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/kz-go/kz-api/internal/auth"
	"github.com/kz-go/kz-api/internal/bansvc"
	"github.com/kz-go/kz-api/internal/database"
	"github.com/kz-go/kz-api/internal/mapsvc"
	"github.com/kz-go/kz-api/internal/recordsvc"
	"github.com/kz-go/kz-api/internal/serversvc"
	"github.com/kz-go/kz-api/internal/steamgw"
)

// ProblemType identifies one of the API's documented error conditions, each
// with a stable type URI a client can match on.
type ProblemType string

const (
	ProblemNoContent              ProblemType = "no-content"
	ProblemMissingHeader          ProblemType = "missing-header"
	ProblemMissingPathParameters  ProblemType = "missing-path-parameters"
	ProblemInvalidPathParameters  ProblemType = "invalid-path-parameters"
	ProblemInvalidQueryString     ProblemType = "invalid-query-string"
	ProblemInvalidHeader          ProblemType = "invalid-header"
	ProblemInvalidRequestBody     ProblemType = "invalid-request-body"
	ProblemUnauthorized           ProblemType = "unauthorized"
	ProblemInvalidOpenIDPayload   ProblemType = "invalid-openid-payload"
	ProblemResourceNotFound       ProblemType = "resource-not-found"
	ProblemResourceAlreadyExists ProblemType = "resource-already-exists"
	ProblemMustHaveMappers        ProblemType = "must-have-mappers"
	ProblemMapMustHaveCourses     ProblemType = "map-must-have-courses"
	ProblemUnrelatedUpdate        ProblemType = "unrelated-update"
	ProblemActionAlreadyPerformed ProblemType = "action-already-performed"
	ProblemIllogicalTimestamp     ProblemType = "illogical-timestamp"
	ProblemNoChange               ProblemType = "no-change"
	ProblemOutdatedVersion        ProblemType = "outdated-version"
	ProblemWorkshopItemNotAMap    ProblemType = "workshop-item-not-a-map"
	ProblemDecodeExternal         ProblemType = "decode-external"
	ProblemDownloadWorkshopMap    ProblemType = "download-workshop-map"
	ProblemInternal               ProblemType = "internal"
	ProblemExternalService        ProblemType = "external-service"
)

const problemBaseURI = "https://docs.kz-api.internal/problems#"

// problemStatus gives each type's default HTTP status. unauthorized is the
// one type reused for both authentication (401) and authorization (403)
// failures; callers pass an explicit override via writeProblemStatus in that
// case rather than relying on this table.
var problemStatus = map[ProblemType]int{
	ProblemNoContent:              http.StatusBadRequest,
	ProblemMissingHeader:          http.StatusBadRequest,
	ProblemMissingPathParameters:  http.StatusBadRequest,
	ProblemInvalidPathParameters:  http.StatusBadRequest,
	ProblemInvalidQueryString:     http.StatusBadRequest,
	ProblemInvalidHeader:          http.StatusBadRequest,
	ProblemInvalidRequestBody:     http.StatusUnprocessableEntity,
	ProblemUnauthorized:           http.StatusUnauthorized,
	ProblemInvalidOpenIDPayload:   http.StatusUnauthorized,
	ProblemResourceNotFound:       http.StatusNotFound,
	ProblemResourceAlreadyExists: http.StatusConflict,
	ProblemMustHaveMappers:        http.StatusConflict,
	ProblemMapMustHaveCourses:     http.StatusConflict,
	ProblemUnrelatedUpdate:        http.StatusConflict,
	ProblemActionAlreadyPerformed: http.StatusConflict,
	ProblemIllogicalTimestamp:     http.StatusConflict,
	ProblemNoChange:               http.StatusConflict,
	ProblemOutdatedVersion:        http.StatusConflict,
	ProblemWorkshopItemNotAMap:    http.StatusUnprocessableEntity,
	ProblemDecodeExternal:         http.StatusBadGateway,
	ProblemDownloadWorkshopMap:    http.StatusBadGateway,
	ProblemInternal:               http.StatusInternalServerError,
	ProblemExternalService:        http.StatusBadGateway,
}

// Problem is the RFC 9457 response body. Extensions carries any additional
// members a specific problem type needs (e.g. the id of a conflicting
// resource, or the current value a client's request disagreed with); it is
// flattened into the top-level JSON object rather than nested.
type Problem struct {
	Type       string
	Title      string
	Status     int
	Detail     string
	Extensions map[string]interface{}
}

// MarshalJSON flattens Extensions alongside the fixed RFC 9457 members.
func (p Problem) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, 4+len(p.Extensions))
	for k, v := range p.Extensions {
		out[k] = v
	}
	out["type"] = p.Type
	out["title"] = p.Title
	out["status"] = p.Status
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	return json.Marshal(out)
}

// writeProblem sends a Problem response for t, using t's default status,
// with detail as the human-readable explanation.
func writeProblem(c *fiber.Ctx, t ProblemType, title, detail string) error {
	return writeProblemStatus(c, t, problemStatus[t], title, detail, nil)
}

// writeProblemExt is writeProblem plus extension members, e.g. the
// conflicting id a must-have-mappers or unrelated-update violation names.
func writeProblemExt(c *fiber.Ctx, t ProblemType, title, detail string, ext map[string]interface{}) error {
	return writeProblemStatus(c, t, problemStatus[t], title, detail, ext)
}

// writeProblemStatus is writeProblem with an explicit status override, used
// for ProblemUnauthorized which serves both the 401 (authentication
// missing/invalid) and 403 (authorization denied) cases with a single type.
func writeProblemStatus(c *fiber.Ctx, t ProblemType, status int, title, detail string, ext map[string]interface{}) error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.Set("Content-Type", "application/problem+json")
	return c.Status(status).JSON(Problem{
		Type:       problemBaseURI + string(t),
		Title:      title,
		Status:     status,
		Detail:     detail,
		Extensions: ext,
	})
}

// classifyError maps a service-layer error into the matching problem
// response. Unrecognized errors become ProblemInternal, never leaking their
// message to the client.
func classifyError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return writeProblemStatus(c, ProblemUnauthorized, http.StatusUnauthorized, "authentication required", err.Error(), nil)
	case errors.Is(err, auth.ErrForbidden):
		return writeProblemStatus(c, ProblemUnauthorized, http.StatusForbidden, "insufficient permissions", err.Error(), nil)

	case errors.Is(err, mapsvc.ErrMapMustHaveMappers):
		return writeProblem(c, ProblemMustHaveMappers, "a map must have at least one mapper", err.Error())
	case errors.Is(err, mapsvc.ErrCourseMustHaveMappers):
		return writeProblem(c, ProblemMustHaveMappers, "a course must have at least one mapper", err.Error())
	case errors.Is(err, mapsvc.ErrMapMustHaveCourses):
		return writeProblem(c, ProblemMapMustHaveCourses, "a map must have at least one course", err.Error())
	case errors.Is(err, mapsvc.ErrInvalidCourseIndex):
		return writeProblem(c, ProblemInvalidRequestBody, "course filters are malformed", err.Error())
	case errors.Is(err, mapsvc.ErrMapperDoesNotExist):
		return writeProblem(c, ProblemResourceNotFound, "referenced mapper does not exist", err.Error())
	case errors.Is(err, mapsvc.ErrMismatchingCourseID):
		var mismatch *mapsvc.MismatchingCourseError
		ext := map[string]interface{}(nil)
		if errors.As(err, &mismatch) {
			ext = map[string]interface{}{"course_id": mismatch.CourseID}
		}
		return writeProblemExt(c, ProblemUnrelatedUpdate, "course does not belong to the given map", err.Error(), ext)
	case errors.Is(err, mapsvc.ErrMismatchingFilterID):
		var mismatch *mapsvc.MismatchingFilterError
		ext := map[string]interface{}(nil)
		if errors.As(err, &mismatch) {
			ext = map[string]interface{}{"filter_id": mismatch.FilterID}
		}
		return writeProblemExt(c, ProblemUnrelatedUpdate, "filter does not belong to the given course", err.Error(), ext)

	case errors.Is(err, serversvc.ErrNameTaken):
		return writeProblem(c, ProblemResourceAlreadyExists, "server name is already taken", err.Error())
	case errors.Is(err, serversvc.ErrHostPortTaken):
		return writeProblem(c, ProblemResourceAlreadyExists, "server host and port are already taken", err.Error())
	case errors.Is(err, serversvc.ErrOwnerMissing):
		return writeProblem(c, ProblemResourceNotFound, "server owner does not exist", err.Error())
	case errors.Is(err, serversvc.ErrOutdatedVersion):
		return writeProblem(c, ProblemOutdatedVersion, "plugin version is not newer than the current release", err.Error())

	case errors.Is(err, bansvc.ErrAlreadyBanned):
		return writeProblem(c, ProblemResourceAlreadyExists, "player already has an active ban", err.Error())
	case errors.Is(err, bansvc.ErrAlreadyReverted):
		return writeProblem(c, ProblemActionAlreadyPerformed, "ban has already been reverted", err.Error())

	case errors.Is(err, recordsvc.ErrPlayerBanned):
		return writeProblemStatus(c, ProblemUnauthorized, http.StatusForbidden, "player is banned", err.Error(), nil)

	case errors.Is(err, steamgw.ErrNotAMap):
		return writeProblem(c, ProblemWorkshopItemNotAMap, "workshop item is not a published map", err.Error())

	case errors.Is(err, database.ErrNotFound):
		return writeProblem(c, ProblemResourceNotFound, "resource not found", err.Error())
	case errors.Is(err, database.ErrAlreadyExists):
		return writeProblem(c, ProblemResourceAlreadyExists, "resource already exists", err.Error())
	case errors.Is(err, database.ErrForeignKeyMissing):
		return writeProblem(c, ProblemResourceNotFound, "referenced resource does not exist", err.Error())

	case errors.Is(err, fiber.ErrNotFound):
		return writeProblem(c, ProblemResourceNotFound, "resource not found", err.Error())

	default:
		return writeProblem(c, ProblemInternal, "internal server error", "")
	}
}
