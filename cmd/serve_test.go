package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermes-intel/hermes/internal/tasks"
)

func TestRouter_ListTasks(t *testing.T) {
	router := newRouter(tasks.NewRegistry(tasks.Deps{}))

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body struct {
		Tasks []string `json:"tasks"`
	}
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Contains(t, body.Tasks, tasks.TaskDailyScrape)
	assert.Contains(t, body.Tasks, tasks.TaskHealthCheck)
}

func TestRouter_UnknownTask(t *testing.T) {
	router := newRouter(tasks.NewRegistry(tasks.Deps{}))

	req := httptest.NewRequest(http.MethodPost, "/tasks/no_such_task", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)

	var body map[string]string
	err := json.Unmarshal(rr.Body.Bytes(), &body)
	require.NoError(t, err)
	assert.Equal(t, "unknown task", body["error"])
	assert.Equal(t, "no_such_task", body["task"])
}
