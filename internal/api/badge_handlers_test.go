package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/skillforge/skill-badges/internal/config"
	"github.com/skillforge/skill-badges/internal/database"
	"github.com/skillforge/skill-badges/internal/services"
	"github.com/skillforge/skill-badges/internal/utils"
)

func setupTestServer(t *testing.T) (*Server, func()) {
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	require.NoError(t, database.EnsureSchema(db))

	cfg := &config.Config{
		HTTP: config.HTTP{
			Port: 8080,
		},
		Server: config.Server{
			LogLevel: "error",
		},
	}

	testDB := &database.Database{}
	testDB.SetDB(db)

	log := utils.NewLogger(utils.LoggerConfig{
		Level:  "error",
		Pretty: false,
	})
	badgeService := services.NewBadgeService(db, log)

	server, err := NewServer(cfg, testDB, badgeService, log)
	require.NoError(t, err)

	cleanup := func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	}

	return server, cleanup
}

func doRequest(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewBuffer(raw))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	rec := httptest.NewRecorder()
	server.router.ServeHTTP(rec, req)
	return rec
}

// envelope mirrors Response with data decoded as raw JSON for re-decoding
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

type badgeRow struct {
	ID               uint      `json:"id"`
	StudentID        int       `json:"student_id"`
	BadgeName        string    `json:"badge_name"`
	BadgeDescription *string   `json:"badge_description"`
	Verified         bool      `json:"verified"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func decodeBadge(t *testing.T, env envelope) badgeRow {
	var row badgeRow
	require.NoError(t, json.Unmarshal(env.Data, &row))
	return row
}

func decodeBadgeList(t *testing.T, env envelope) []badgeRow {
	var rows []badgeRow
	require.NoError(t, json.Unmarshal(env.Data, &rows))
	return rows
}

func createBadge(t *testing.T, server *Server, studentID int, name string) badgeRow {
	rec := doRequest(t, server, http.MethodPost, "/badges", gin.H{
		"student_id": studentID,
		"badge_name": name,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return decodeBadge(t, decodeEnvelope(t, rec))
}

func TestProvisionTableEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	// Schema already exists from setup; the endpoint must stay idempotent
	for i := 0; i < 2; i++ {
		rec := doRequest(t, server, http.MethodGet, "/create-skill-badges-table", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		env := decodeEnvelope(t, rec)
		assert.True(t, env.Success)
		assert.Equal(t, "skill_badges table created successfully", env.Message)
	}
}

func TestCreateBadgeEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("create with required fields", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/badges", gin.H{
			"student_id": 1,
			"badge_name": "Rust Basics",
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.True(t, env.Success)

		row := decodeBadge(t, env)
		assert.NotZero(t, row.ID)
		assert.Equal(t, 1, row.StudentID)
		assert.Equal(t, "Rust Basics", row.BadgeName)
		assert.False(t, row.Verified)
		assert.False(t, row.CreatedAt.IsZero())
		assert.False(t, row.UpdatedAt.IsZero())
	})

	t.Run("create with all fields", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/badges", gin.H{
			"student_id":        2,
			"badge_name":        "Go Basics",
			"badge_description": "intro track",
			"verified":          true,
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		row := decodeBadge(t, decodeEnvelope(t, rec))
		require.NotNil(t, row.BadgeDescription)
		assert.Equal(t, "intro track", *row.BadgeDescription)
		assert.True(t, row.Verified)
	})

	t.Run("missing student_id", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/badges", gin.H{
			"badge_name": "Rust Basics",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.False(t, env.Success)
		assert.Equal(t, "student_id and badge_name are required", env.Message)
	})

	t.Run("missing badge_name", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/badges", gin.H{
			"student_id": 1,
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.False(t, env.Success)
	})

	t.Run("zero student_id is treated as absent", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPost, "/badges", gin.H{
			"student_id": 0,
			"badge_name": "Rust Basics",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/badges", bytes.NewBufferString("{not json"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		server.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListBadgesEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("empty table returns empty list", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/badges", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.True(t, env.Success)
		assert.Equal(t, "[]", string(env.Data))
	})

	t.Run("returns all rows newest first", func(t *testing.T) {
		createBadge(t, server, 1, "Rust Basics")
		time.Sleep(2 * time.Millisecond)
		createBadge(t, server, 2, "Go Basics")
		time.Sleep(2 * time.Millisecond)
		createBadge(t, server, 1, "SQL Basics")

		rec := doRequest(t, server, http.MethodGet, "/badges", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rows := decodeBadgeList(t, decodeEnvelope(t, rec))
		require.Len(t, rows, 3)
		assert.Equal(t, "SQL Basics", rows[0].BadgeName)
		assert.Equal(t, "Go Basics", rows[1].BadgeName)
		assert.Equal(t, "Rust Basics", rows[2].BadgeName)
	})

	t.Run("student_id query filter", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/badges?student_id=1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rows := decodeBadgeList(t, decodeEnvelope(t, rec))
		require.Len(t, rows, 2)
		for _, row := range rows {
			assert.Equal(t, 1, row.StudentID)
		}
	})

	t.Run("invalid student_id filter", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/badges?student_id=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetBadgeEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	created := createBadge(t, server, 1, "Rust Basics")

	t.Run("found", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, fmt.Sprintf("/badges/%d", created.ID), nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		row := decodeBadge(t, decodeEnvelope(t, rec))
		assert.Equal(t, created.ID, row.ID)
		assert.Equal(t, "Rust Basics", row.BadgeName)
	})

	t.Run("not found", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/badges/999999", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.False(t, env.Success)
		assert.Equal(t, "badge not found", env.Message)
	})

	t.Run("invalid id", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/badges/not-a-number", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListStudentBadgesEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	createBadge(t, server, 1, "Rust Basics")
	time.Sleep(2 * time.Millisecond)
	createBadge(t, server, 2, "Go Basics")
	time.Sleep(2 * time.Millisecond)
	createBadge(t, server, 1, "SQL Basics")

	t.Run("scoped to the student, newest first", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/students/1/badges", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		rows := decodeBadgeList(t, decodeEnvelope(t, rec))
		require.Len(t, rows, 2)
		assert.Equal(t, "SQL Basics", rows[0].BadgeName)
		assert.Equal(t, "Rust Basics", rows[1].BadgeName)
	})

	t.Run("unknown student yields empty list", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/students/999/badges", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		rows := decodeBadgeList(t, decodeEnvelope(t, rec))
		assert.Empty(t, rows)
	})

	t.Run("invalid studentId", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodGet, "/students/abc/badges", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateBadgeEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("partial update changes only supplied fields", func(t *testing.T) {
		created := createBadge(t, server, 1, "Rust Basics")

		rec := doRequest(t, server, http.MethodPut, fmt.Sprintf("/badges/%d", created.ID), gin.H{
			"badge_name": "Advanced Rust",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		row := decodeBadge(t, decodeEnvelope(t, rec))
		assert.Equal(t, "Advanced Rust", row.BadgeName)
		assert.Equal(t, created.StudentID, row.StudentID)
		assert.Equal(t, created.Verified, row.Verified)
	})

	t.Run("empty body is rejected", func(t *testing.T) {
		created := createBadge(t, server, 1, "Go Basics")

		rec := doRequest(t, server, http.MethodPut, fmt.Sprintf("/badges/%d", created.ID), gin.H{})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.False(t, env.Success)
		assert.Contains(t, env.Message, "no valid fields")
	})

	t.Run("not found", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPut, "/badges/999999", gin.H{
			"badge_name": "Advanced Rust",
		})

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestVerifyBadgeEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("explicit boolean assigns", func(t *testing.T) {
		created := createBadge(t, server, 1, "Rust Basics")

		rec := doRequest(t, server, http.MethodPatch, fmt.Sprintf("/badges/%d/verify", created.ID), gin.H{
			"verified": true,
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		row := decodeBadge(t, decodeEnvelope(t, rec))
		assert.True(t, row.Verified)
	})

	t.Run("missing body toggles", func(t *testing.T) {
		created := createBadge(t, server, 1, "Go Basics")
		require.False(t, created.Verified)

		rec := doRequest(t, server, http.MethodPatch, fmt.Sprintf("/badges/%d/verify", created.ID), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		row := decodeBadge(t, decodeEnvelope(t, rec))
		assert.True(t, row.Verified)

		// Double toggle restores the original value
		rec = doRequest(t, server, http.MethodPatch, fmt.Sprintf("/badges/%d/verify", created.ID), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		row = decodeBadge(t, decodeEnvelope(t, rec))
		assert.False(t, row.Verified)
	})

	t.Run("non-boolean verified toggles", func(t *testing.T) {
		created := createBadge(t, server, 1, "SQL Basics")

		rec := doRequest(t, server, http.MethodPatch, fmt.Sprintf("/badges/%d/verify", created.ID), gin.H{
			"verified": "yes",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		row := decodeBadge(t, decodeEnvelope(t, rec))
		assert.True(t, row.Verified)
	})

	t.Run("not found", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodPatch, "/badges/999999/verify", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestDeleteBadgeEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	t.Run("delete returns the removed row", func(t *testing.T) {
		created := createBadge(t, server, 1, "Rust Basics")

		rec := doRequest(t, server, http.MethodDelete, fmt.Sprintf("/badges/%d", created.ID), nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		env := decodeEnvelope(t, rec)
		assert.True(t, env.Success)
		assert.Equal(t, "Badge deleted successfully", env.Message)

		row := decodeBadge(t, env)
		assert.Equal(t, created.ID, row.ID)
		assert.Equal(t, "Rust Basics", row.BadgeName)

		// Subsequent get yields not found
		rec = doRequest(t, server, http.MethodGet, fmt.Sprintf("/badges/%d", created.ID), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("not found", func(t *testing.T) {
		rec := doRequest(t, server, http.MethodDelete, "/badges/999999", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	rec := doRequest(t, server, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}
