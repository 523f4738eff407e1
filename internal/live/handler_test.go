package live

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/videohub/backend/internal/middleware"
	"github.com/videohub/backend/internal/models"
	"github.com/videohub/backend/pkg/cloud"
)

func startRequest(t *testing.T, fx *liveFixture, l *models.LiveVideo, action string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/live/"+l.VideoID.String()+"/"+action, nil)
	c.Params = gin.Params{{Key: "video_id", Value: l.VideoID.String()}}
	c.Set(middleware.ContextOrgID, fx.org.ID)

	h := NewHandler(fx.svc, nil)
	switch action {
	case "start":
		h.Start(c)
	case "stop":
		h.Stop(c)
	}
	return w
}

func TestStartMapsMissingChannelToNotFound(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.channels.startErr = cloud.ErrChannelNotFound

	w := startRequest(t, fx, l, "start")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStopMapsMissingChannelToNotFound(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveOn
	fx.channels.stopErr = cloud.ErrChannelNotFound

	w := startRequest(t, fx, l, "stop")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartWrongStateIsConflict(t *testing.T) {
	fx := newLiveFixture(t)
	l := fx.create(t)
	fx.store.lives[l.VideoID].State = models.LiveDeleting

	w := startRequest(t, fx, l, "start")
	assert.Equal(t, http.StatusConflict, w.Code)
}
