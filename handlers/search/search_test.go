package search

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/NagallaThanvi/unilink/services/search"
	"github.com/NagallaThanvi/unilink/utils/testutil"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, engine search.Engine, index string, docs map[string]interface{}) {
	t.Helper()
	ctx := context.Background()
	batch, err := engine.NewBatch()
	require.NoError(t, err)
	for id, doc := range docs {
		body, err := json.Marshal(doc)
		require.NoError(t, err)
		require.NoError(t, batch.Index(ctx, index, id, body, nil))
	}
	_, err = batch.Close(ctx)
	require.NoError(t, err)
}

func TestSearch(t *testing.T) {
	engine := search.NewMemoryEngine()
	seed(t, engine, search.IdxProfiles, map[string]interface{}{
		"1": search.ProfileDoc{UserID: 1, UniversityID: 1, Name: "Ada Lovelace", Skills: []string{"golang", "postgres"}, IsMentor: true, GraduationYear: 2015},
		"2": search.ProfileDoc{UserID: 2, UniversityID: 1, Name: "Alan Turing", Skills: []string{"python"}, GraduationYear: 2018},
		"3": search.ProfileDoc{UserID: 3, UniversityID: 2, Name: "Grace Hopper", Skills: []string{"golang"}, GraduationYear: 2015},
	})
	seed(t, engine, search.IdxJobs, map[string]interface{}{
		"10": search.JobDoc{UniversityID: 1, Title: "Backend Engineer", Company: "Acme", Type: "full_time", Status: "open"},
		"11": search.JobDoc{UniversityID: 1, Title: "Research Intern", Company: "Labs", Type: "internship", Status: "open"},
	})

	app := fiber.New()
	app.Get("/search", NewSearchHandler(engine).Search)

	t.Run("profiles by default", func(t *testing.T) {
		status, env := testutil.Do(t, app, http.MethodGet, "/search?q=golang", nil, "")
		require.Equal(t, http.StatusOK, status)
		var hits []search.Hit
		env.Decode(t, &hits)
		require.Len(t, hits, 2)
		assert.Equal(t, "1", hits[0].ID)
		assert.Equal(t, "3", hits[1].ID)
		assert.EqualValues(t, 2, env.Pagination["total"])
	})

	t.Run("profile filters", func(t *testing.T) {
		status, env := testutil.Do(t, app, http.MethodGet, "/search?q=golang&university_id=2", nil, "")
		require.Equal(t, http.StatusOK, status)
		var hits []search.Hit
		env.Decode(t, &hits)
		require.Len(t, hits, 1)
		assert.Equal(t, "3", hits[0].ID)

		status, env = testutil.Do(t, app, http.MethodGet, "/search?is_mentor=true", nil, "")
		require.Equal(t, http.StatusOK, status)
		env.Decode(t, &hits)
		require.Len(t, hits, 1)
		var doc search.ProfileDoc
		require.NoError(t, json.Unmarshal(hits[0].Source, &doc))
		assert.Equal(t, "Ada Lovelace", doc.Name)

		status, env = testutil.Do(t, app, http.MethodGet, "/search?graduation_year=2015&limit=1&offset=1", nil, "")
		require.Equal(t, http.StatusOK, status)
		env.Decode(t, &hits)
		require.Len(t, hits, 1)
		assert.Equal(t, "3", hits[0].ID)
		assert.EqualValues(t, 2, env.Pagination["total"])
	})

	t.Run("jobs", func(t *testing.T) {
		status, env := testutil.Do(t, app, http.MethodGet, "/search?type=jobs&job_type=internship", nil, "")
		require.Equal(t, http.StatusOK, status)
		var hits []search.Hit
		env.Decode(t, &hits)
		require.Len(t, hits, 1)
		assert.Equal(t, "11", hits[0].ID)

		status, _ = testutil.Do(t, app, http.MethodGet, "/search?type=jobs&job_type=volunteer", nil, "")
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("unknown type", func(t *testing.T) {
		status, _ := testutil.Do(t, app, http.MethodGet, "/search?type=events&q=x", nil, "")
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestSearchNotConfigured(t *testing.T) {
	app := fiber.New()
	app.Get("/search", NewSearchHandler(nil).Search)

	status, env := testutil.Do(t, app, http.MethodGet, "/search?q=x", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
}
