package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oncall-api/internal/models"
)

type oncallServiceMock struct {
	layer      *models.Layer
	assignment *models.Assignment
	upcoming   []models.UpcomingAssignment
	err        error
}

func (m *oncallServiceMock) AssignmentAt(instant time.Time) (*models.Layer, *models.Assignment, error) {
	return m.layer, m.assignment, m.err
}

func (m *oncallServiceMock) Upcoming(now time.Time, n int) []models.UpcomingAssignment {
	return m.upcoming
}

func TestOnCallHandlerCurrent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewOnCallHandler(&oncallServiceMock{
		layer:      &models.Layer{Key: "layer1", Name: "Primary"},
		assignment: &models.Assignment{Person: "alice"},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/oncall/current", nil)

	handler.Current(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			LayerKey string `json:"layer_key"`
			Person   string `json:"person"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "layer1", body.Data.LayerKey)
	assert.Equal(t, "alice", body.Data.Person)
}

func TestOnCallHandlerCurrentOffShift(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewOnCallHandler(&oncallServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/oncall/current", nil)

	handler.Current(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			OnShift bool `json:"on_shift"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Data.OnShift)
}

func TestOnCallHandlerCurrentBadInstant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewOnCallHandler(&oncallServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/oncall/current?at=yesterday", nil)

	handler.Current(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOnCallHandlerUpcoming(t *testing.T) {
	gin.SetMode(gin.TestMode)
	start := time.Date(2025, 9, 25, 10, 0, 0, 0, time.UTC)
	handler := NewOnCallHandler(&oncallServiceMock{
		upcoming: []models.UpcomingAssignment{
			{LayerKey: "layer1", Person: "alice", Start: start},
			{LayerKey: "layer1", Person: "bob", Start: start.AddDate(0, 0, 1)},
		},
	})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/oncall/upcoming", nil)

	handler.Upcoming(c)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data struct {
			Upcoming []struct {
				Person string `json:"person"`
			} `json:"upcoming"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data.Upcoming, 2)
	assert.Equal(t, "alice", body.Data.Upcoming[0].Person)
}

func TestOnCallHandlerUpcomingBadCount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewOnCallHandler(&oncallServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/oncall/upcoming?count=-2", nil)

	handler.Upcoming(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
