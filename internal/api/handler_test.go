package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"ontap-backend/config"
	"ontap-backend/internal/db"
	"ontap-backend/internal/event"
	"ontap-backend/internal/meter"
	"ontap-backend/internal/model"
	"ontap-backend/internal/pour"
	"ontap-backend/internal/session"
	"ontap-backend/internal/tap"
)

func setupRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.CacheTTLSeconds = 1
	cfg.Flow.DefaultTicksPerML = 2.2

	deriver := event.NewDeriver(gormDB, nil)
	meters := meter.NewRegistry(gormDB, cfg.Flow.DefaultTicksPerML)
	windower := session.NewWindower(30 * time.Minute)
	recorder := pour.NewRecorder(gormDB, windower, deriver, meters)
	taps := tap.NewRegistry(gormDB, deriver)

	return NewRouter(cfg, gormDB, recorder, taps, &webpush.Options{}), gormDB
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetVAPIDPublicKey(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	h := NewHandler(nil, nil, nil, &webpush.Options{VAPIDPublicKey: "test-public-key"})
	r.GET("/api/vapid_public_key", h.GetVAPIDPublicKey)

	w := httptest.NewRecorder()
	req, err := http.NewRequest("GET", "/api/vapid_public_key", nil)
	require.NoError(t, err)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"public_key":"test-public-key"}`, w.Body.String())

	// Without keys the endpoint reports unavailable instead of an empty key.
	router, _ := setupRouter(t)
	w = doJSON(t, router, "GET", "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTapLifecycleOverHTTP(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/taps", gin.H{"name": "Left Tap", "sort_order": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	var tapResp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tapResp))
	tapID := int64(tapResp["id"].(float64))

	w = doJSON(t, router, "POST", "/api/kegs", gin.H{"keg_type": "cornelius"})
	require.Equal(t, http.StatusCreated, w.Code)
	var kegResp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kegResp))
	kegID := int64(kegResp["id"].(float64))
	assert.Equal(t, 18927.0, kegResp["full_volume_ml"], "capacity defaults from the keg type")

	w = doJSON(t, router, "POST", fmt.Sprintf("/api/taps/%d/attach", tapID), gin.H{"keg_id": kegID})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tapResp))
	require.NotNil(t, tapResp["keg"])

	// Attaching anything else to the busy tap conflicts.
	w = doJSON(t, router, "POST", "/api/kegs", gin.H{"keg_type": "euro"})
	require.Equal(t, http.StatusCreated, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &kegResp))
	w = doJSON(t, router, "POST", fmt.Sprintf("/api/taps/%d/attach", tapID), gin.H{"keg_id": int64(kegResp["id"].(float64))})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, router, "POST", fmt.Sprintf("/api/taps/%d/detach", tapID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCreatePourOverHTTP(t *testing.T) {
	router, gormDB := setupRouter(t)

	k := model.Keg{KegType: "other", Status: model.KegStatusOnTap, FullVolumeML: 5000, StartTime: time.Now().UTC()}
	require.NoError(t, gormDB.Create(&k).Error)
	tp := model.Tap{Name: "Main Tap", CurrentKegID: &k.ID}
	require.NoError(t, gormDB.Create(&tp).Error)
	require.NoError(t, gormDB.Model(&k).Update("tap_id", tp.ID).Error)

	vol := 500.0
	w := doJSON(t, router, "POST", "/api/pours", gin.H{"tap_name": "Main Tap", "ticks": 1100, "volume_ml": vol})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var p model.Pour
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	assert.Equal(t, 500.0, p.VolumeML)
	require.NotNil(t, p.Session)

	// A spill is booked against the keg but creates no pour resource.
	w = doJSON(t, router, "POST", "/api/pours", gin.H{"tap_name": "Main Tap", "volume_ml": 50.0, "spilled": true})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Pour recorded as spill"}`, w.Body.String())

	// Neither tap_name nor meter_name is a client error.
	w = doJSON(t, router, "POST", "/api/pours", gin.H{"ticks": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// An unknown drinker is rejected rather than silently becoming a guest.
	w = doJSON(t, router, "POST", "/api/pours", gin.H{"tap_name": "Main Tap", "volume_ml": 100.0, "username": "nobody"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreatePourNoActiveKeg(t *testing.T) {
	router, gormDB := setupRouter(t)

	tp := model.Tap{Name: "Dry Tap"}
	require.NoError(t, gormDB.Create(&tp).Error)

	w := doJSON(t, router, "POST", "/api/pours", gin.H{"tap_name": "Dry Tap", "volume_ml": 100.0})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetKegNotFound(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "GET", "/api/kegs/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutSubscriptionValidation(t *testing.T) {
	router, gormDB := setupRouter(t)

	w := doJSON(t, router, "PUT", "/api/subscriptions", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	tp := model.Tap{Name: "Left Tap"}
	require.NoError(t, gormDB.Create(&tp).Error)

	w = doJSON(t, router, "PUT", "/api/subscriptions", gin.H{
		"endpoint":        "https://example.com/push",
		"p256dh":          "key",
		"auth":            "secret",
		"subscribed_taps": []int64{tp.ID},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, "GET", "/api/subscriptions?endpoint=https://example.com/push", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"subscribed_taps":[%d]}`, tp.ID), w.Body.String())
}
