package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kz-go/kz-api/internal/auth"
	"github.com/kz-go/kz-api/internal/mapsvc"
)

func classifyInApp(t *testing.T, err error) (int, Problem) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return classifyError(c, err)
	})

	resp, reqErr := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	require.NoError(t, reqErr)
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)

	var problem Problem
	require.NoError(t, json.Unmarshal(body, &problem))
	return resp.StatusCode, problem
}

func TestClassifyErrorUnauthenticated(t *testing.T) {
	status, problem := classifyInApp(t, auth.ErrUnauthenticated)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, problemBaseURI+string(ProblemUnauthorized), problem.Type)
}

func TestClassifyErrorForbidden(t *testing.T) {
	status, problem := classifyInApp(t, auth.ErrForbidden)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, problemBaseURI+string(ProblemUnauthorized), problem.Type)
}

func TestClassifyErrorMapMustHaveMappers(t *testing.T) {
	status, problem := classifyInApp(t, mapsvc.ErrMapMustHaveMappers)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, problemBaseURI+string(ProblemMustHaveMappers), problem.Type)
}

func TestClassifyErrorDefaultsToInternalAndHidesMessage(t *testing.T) {
	status, problem := classifyInApp(t, errors.New("leaked db connection string"))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, problemBaseURI+string(ProblemInternal), problem.Type)
	assert.Empty(t, problem.Detail)
}
