package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"task-manager/internal/models"
	"task-manager/internal/session"
	"task-manager/internal/storage"
)

type response struct {
	Status  int              `json:"-"`
	Success bool             `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Message string           `json:"message"`
	User    *models.UserInfo `json:"user"`
}

// APITestSuite drives the API over HTTP with cookie-carrying clients.
type APITestSuite struct {
	suite.Suite
	db  *storage.DB
	srv *httptest.Server
}

// SetupTest runs before each test
func (suite *APITestSuite) SetupTest() {
	db, err := storage.NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.db = db

	sessions := session.NewManager(db, session.Options{})
	h := NewHandlers(db, sessions)
	router := mux.NewRouter()
	h.Routes(router)
	suite.srv = httptest.NewServer(RequestLogger(sessions.Middleware(router)))
}

// TearDownTest runs after each test
func (suite *APITestSuite) TearDownTest() {
	suite.srv.Close()
	suite.db.Close()
}

func (suite *APITestSuite) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	require.NoError(suite.T(), err)
	return &http.Client{Jar: jar}
}

func (suite *APITestSuite) call(c *http.Client, method, path string, body any) response {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(suite.T(), err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, suite.srv.URL+path, reader)
	require.NoError(suite.T(), err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()

	assert.Equal(suite.T(), "application/json", resp.Header.Get("Content-Type"))
	var out response
	require.NoError(suite.T(), json.NewDecoder(resp.Body).Decode(&out))
	out.Status = resp.StatusCode
	return out
}

func (suite *APITestSuite) auth(c *http.Client, action, username, password string) response {
	return suite.call(c, http.MethodPost, "/api/auth", map[string]string{
		"action": action, "username": username, "password": password,
	})
}

func (suite *APITestSuite) loggedIn(username string) *http.Client {
	c := suite.newClient()
	require.True(suite.T(), suite.auth(c, "register", username, "secret123").Success)
	require.True(suite.T(), suite.auth(c, "login", username, "secret123").Success)
	return c
}

func (suite *APITestSuite) createTask(c *http.Client, body any) int64 {
	res := suite.call(c, http.MethodPost, "/api/tasks", body)
	require.Equal(suite.T(), http.StatusCreated, res.Status, res.Message)
	var created CreatedTask
	require.NoError(suite.T(), json.Unmarshal(res.Data, &created))
	return created.ID
}

func (suite *APITestSuite) listTasks(c *http.Client) []models.Task {
	res := suite.call(c, http.MethodGet, "/api/tasks", nil)
	require.Equal(suite.T(), http.StatusOK, res.Status)
	var tasks []models.Task
	require.NoError(suite.T(), json.Unmarshal(res.Data, &tasks))
	return tasks
}

func (suite *APITestSuite) TestAuthFlow() {
	c := suite.newClient()

	res := suite.auth(c, "register", "alice", "secret123")
	assert.Equal(suite.T(), http.StatusCreated, res.Status)
	assert.True(suite.T(), res.Success)

	res = suite.auth(c, "register", "alice", "other")
	assert.Equal(suite.T(), http.StatusConflict, res.Status)
	assert.False(suite.T(), res.Success)
	assert.Equal(suite.T(), "Username already exists", res.Message)

	// Register does not log in
	res = suite.auth(c, "me", "", "")
	assert.Equal(suite.T(), http.StatusUnauthorized, res.Status)
	assert.False(suite.T(), res.Success)

	res = suite.auth(c, "login", "alice", "wrong")
	assert.Equal(suite.T(), http.StatusUnauthorized, res.Status)
	assert.False(suite.T(), res.Success)
	assert.Equal(suite.T(), "Invalid credentials", res.Message)

	res = suite.auth(c, "login", "alice", "secret123")
	assert.Equal(suite.T(), http.StatusOK, res.Status)
	assert.True(suite.T(), res.Success)
	assert.Equal(suite.T(), &models.UserInfo{ID: 1, Username: "alice"}, res.User)

	res = suite.auth(c, "me", "", "")
	assert.True(suite.T(), res.Success)
	assert.Equal(suite.T(), &models.UserInfo{ID: 1, Username: "alice"}, res.User)

	res = suite.auth(c, "logout", "", "")
	assert.True(suite.T(), res.Success)

	res = suite.auth(c, "me", "", "")
	assert.False(suite.T(), res.Success)

	// Logout without a session still succeeds
	res = suite.auth(c, "logout", "", "")
	assert.True(suite.T(), res.Success)
}

func (suite *APITestSuite) TestUnknownUserLooksLikeWrongPassword() {
	c := suite.newClient()
	suite.auth(c, "register", "alice", "secret123")

	wrong := suite.auth(c, "login", "alice", "nope")
	unknown := suite.auth(c, "login", "mallory", "nope")
	assert.Equal(suite.T(), wrong.Status, unknown.Status)
	assert.Equal(suite.T(), wrong.Message, unknown.Message)
}

func (suite *APITestSuite) TestAuthBadRequests() {
	c := suite.newClient()

	res := suite.auth(c, "dance", "", "")
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)
	assert.Equal(suite.T(), "Unsupported method or missing action", res.Message)

	res = suite.call(c, http.MethodPost, "/api/auth", "{not json")
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)

	res = suite.auth(c, "register", "", "secret123")
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)
	assert.False(suite.T(), res.Success)

	res = suite.auth(c, "register", "bob", strings.Repeat("p", 73))
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)
	assert.Contains(suite.T(), res.Message, "password longer than 72 bytes")
}

func (suite *APITestSuite) TestTasksRequireSession() {
	c := suite.newClient()

	res := suite.call(c, http.MethodGet, "/api/tasks", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, res.Status)
	assert.Equal(suite.T(), "Not authenticated", res.Message)

	res = suite.call(c, http.MethodPost, "/api/tasks", map[string]string{"title": "x"})
	assert.Equal(suite.T(), http.StatusUnauthorized, res.Status)

	res = suite.call(c, http.MethodPatch, "/api/tasks", map[string]any{"id": 1, "title": "x"})
	assert.Equal(suite.T(), http.StatusUnauthorized, res.Status)

	res = suite.call(c, http.MethodGet, "/api/tasks/stats", nil)
	assert.Equal(suite.T(), http.StatusUnauthorized, res.Status)
}

func (suite *APITestSuite) TestTaskLifecycle() {
	c := suite.loggedIn("alice")

	assert.Empty(suite.T(), suite.listTasks(c))

	id := suite.createTask(c, map[string]any{"title": "Buy milk", "priority": "High", "due_date": "2025-01-31"})
	tasks := suite.listTasks(c)
	require.Len(suite.T(), tasks, 1)
	assert.Equal(suite.T(), id, tasks[0].ID)
	assert.Equal(suite.T(), "Buy milk", tasks[0].Title)
	assert.Equal(suite.T(), models.PriorityHigh, tasks[0].Priority)
	assert.Equal(suite.T(), models.StatusPending, tasks[0].Completed)

	res := suite.call(c, http.MethodPatch, "/api/tasks", map[string]any{"id": id, "completed": "Completed"})
	assert.Equal(suite.T(), http.StatusOK, res.Status)
	assert.True(suite.T(), res.Success)
	assert.Equal(suite.T(), models.StatusCompleted, suite.listTasks(c)[0].Completed)

	res = suite.call(c, http.MethodPatch, "/api/tasks", map[string]any{"id": id, "completed": "Deleted"})
	assert.True(suite.T(), res.Success)
	assert.Empty(suite.T(), suite.listTasks(c), "soft-deleted tasks are not listed")
}

func (suite *APITestSuite) TestCreateTaskDefaults() {
	c := suite.loggedIn("alice")
	suite.createTask(c, map[string]string{"title": "Plain"})

	tasks := suite.listTasks(c)
	require.Len(suite.T(), tasks, 1)
	assert.Equal(suite.T(), models.PriorityLow, tasks[0].Priority)
	assert.Equal(suite.T(), models.StatusPending, tasks[0].Completed)
}

func (suite *APITestSuite) TestCreateTaskValidation() {
	c := suite.loggedIn("alice")

	res := suite.call(c, http.MethodPost, "/api/tasks", map[string]string{"description": "no title"})
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)
	assert.False(suite.T(), res.Success)

	res = suite.call(c, http.MethodPost, "/api/tasks", "[1,2")
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)
}

func (suite *APITestSuite) TestPatchErrors() {
	c := suite.loggedIn("alice")
	id := suite.createTask(c, map[string]string{"title": "Keep"})

	res := suite.call(c, http.MethodPatch, "/api/tasks", map[string]string{"title": "no id"})
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)
	assert.Equal(suite.T(), "Task ID required for update", res.Message)

	res = suite.call(c, http.MethodPatch, "/api/tasks", map[string]any{"id": id})
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)
	assert.Equal(suite.T(), "No fields to update", res.Message)

	res = suite.call(c, http.MethodPatch, "/api/tasks", map[string]any{"id": id, "title": nil})
	assert.Equal(suite.T(), http.StatusBadRequest, res.Status)

	res = suite.call(c, http.MethodPatch, "/api/tasks", map[string]any{"id": 9999, "title": "x"})
	assert.Equal(suite.T(), http.StatusNotFound, res.Status)

	assert.Equal(suite.T(), "Keep", suite.listTasks(c)[0].Title)
}

func (suite *APITestSuite) TestPatchNullClearsField() {
	c := suite.loggedIn("alice")
	id := suite.createTask(c, map[string]string{"title": "Tagged", "tags": "home", "description": "stays"})

	res := suite.call(c, http.MethodPatch, "/api/tasks", map[string]any{"id": id, "tags": nil})
	require.True(suite.T(), res.Success)

	task := suite.listTasks(c)[0]
	assert.Nil(suite.T(), task.Tags)
	require.NotNil(suite.T(), task.Description)
	assert.Equal(suite.T(), "stays", *task.Description)
}

func (suite *APITestSuite) TestUsersAreIsolated() {
	alice := suite.loggedIn("alice")
	bob := suite.loggedIn("bob")

	aliceTask := suite.createTask(alice, map[string]string{"title": "Alice's"})
	suite.createTask(bob, map[string]string{"title": "Bob's"})

	aliceTasks := suite.listTasks(alice)
	require.Len(suite.T(), aliceTasks, 1)
	assert.Equal(suite.T(), "Alice's", aliceTasks[0].Title)

	bobTasks := suite.listTasks(bob)
	require.Len(suite.T(), bobTasks, 1)
	assert.Equal(suite.T(), "Bob's", bobTasks[0].Title)

	// Bob cannot modify Alice's task
	res := suite.call(bob, http.MethodPatch, "/api/tasks", map[string]any{"id": aliceTask, "title": "mine now"})
	assert.Equal(suite.T(), http.StatusNotFound, res.Status)
	assert.Equal(suite.T(), "Alice's", suite.listTasks(alice)[0].Title)
}

func (suite *APITestSuite) TestLegacyPaths() {
	c := suite.newClient()
	res := suite.call(c, http.MethodPost, "/auth.php", map[string]string{
		"action": "register", "username": "alice", "password": "secret123",
	})
	require.True(suite.T(), res.Success)
	res = suite.call(c, http.MethodPost, "/auth.php", map[string]string{
		"action": "login", "username": "alice", "password": "secret123",
	})
	require.True(suite.T(), res.Success)

	res = suite.call(c, http.MethodPost, "/api.php", map[string]string{"title": "legacy"})
	assert.Equal(suite.T(), http.StatusCreated, res.Status)

	res = suite.call(c, http.MethodGet, "/api.php", nil)
	assert.True(suite.T(), res.Success)
	assert.True(suite.T(), strings.Contains(string(res.Data), "legacy"))
}

func (suite *APITestSuite) TestStats() {
	c := suite.loggedIn("alice")
	id := suite.createTask(c, map[string]string{"title": "a", "priority": "High"})
	suite.createTask(c, map[string]string{"title": "b"})
	suite.call(c, http.MethodPatch, "/api/tasks", map[string]any{"id": id, "completed": "Completed"})

	res := suite.call(c, http.MethodGet, "/api/tasks/stats", nil)
	require.Equal(suite.T(), http.StatusOK, res.Status)

	var stats models.TaskStats
	require.NoError(suite.T(), json.Unmarshal(res.Data, &stats))
	assert.Equal(suite.T(), 2, stats.Total)
	require.Len(suite.T(), stats.ByStatus, 2)
	assert.Equal(suite.T(), 1, stats.ByStatus[0].Count)
	assert.InDelta(suite.T(), 50.0, stats.ByStatus[1].Percentage, 0.001)
}

func (suite *APITestSuite) TestRequestIDIsEchoed() {
	req, err := http.NewRequest(http.MethodGet, suite.srv.URL+"/healthz", nil)
	require.NoError(suite.T(), err)
	req.Header.Set(RequestIDHeader, "abc-123")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(suite.T(), err)
	defer resp.Body.Close()
	assert.Equal(suite.T(), "abc-123", resp.Header.Get(RequestIDHeader))
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}
