package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/middleware"
	"dispatch_tracker/internal/models"
)

type crudAPI struct {
	r *gin.Engine
}

func newCRUDAPI(t *testing.T) *crudAPI {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "api.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))

	prev := config.DB
	config.DB = db
	t.Cleanup(func() { config.DB = prev })
	middleware.Configure("controller-test-secret")

	r := gin.New()
	r.POST("/auth/signup", SignupUser)
	r.POST("/auth/login", LoginUser)
	api := r.Group("/api", middleware.RequireAuth())
	api.GET("/me", GetProfile)
	api.PUT("/company", UpdateCompany)
	api.POST("/vehicles", CreateVehicle)
	api.GET("/vehicles", GetMyVehicles)
	api.PUT("/vehicles/:id", UpdateVehicle)
	api.DELETE("/vehicles/:id", DeleteVehicle)
	api.POST("/positions", CreatePosition)
	api.GET("/positions", ListPositions)
	api.GET("/positions/latest", LatestPositions)
	api.POST("/orders", CreateOrder)
	api.GET("/orders", ListOrders)
	api.GET("/orders/:id", GetOrder)
	api.DELETE("/orders/:id", DeleteOrder)
	api.POST("/stops", CreateStop)
	api.GET("/stops", ListStops)
	api.POST("/trips", CreateTrip)
	api.GET("/trips", ListTrips)
	api.GET("/trips/:id", GetTrip)
	api.PUT("/trips/:id", UpdateTrip)
	api.DELETE("/trips/:id", DeleteTrip)
	return &crudAPI{r: r}
}

func (a *crudAPI) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

// signup registers a dispatcher with a fresh company and returns their token.
func (a *crudAPI) signup(t *testing.T, email, company string) string {
	t.Helper()
	w := a.do(t, "", http.MethodPost, "/auth/signup", gin.H{
		"name": "Amina", "email": email, "password": "s3cret-pass", "company_name": company,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func (a *crudAPI) vehicle(t *testing.T, token, plate string) uint {
	t.Helper()
	w := a.do(t, token, http.MethodPost, "/api/vehicles", gin.H{
		"license_plate": plate, "make": "Isuzu", "model": "FRR", "capacity": 8.5,
		"driver_name": "Otieno", "driver_email": "otieno@acme.test",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return uint(decode(t, w)["vehicle"].(map[string]any)["ID"].(float64))
}

func TestSignupAndLogin(t *testing.T) {
	api := newCRUDAPI(t)
	token := api.signup(t, "amina@acme.test", "Acme Haulage")

	claims, err := middleware.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "dispatcher", claims.Role)
	assert.NotZero(t, claims.CompanyID)

	w := api.do(t, "", http.MethodPost, "/auth/signup", gin.H{
		"name": "Again", "email": "AMINA@acme.test", "password": "s3cret-pass",
	})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, "", http.MethodPost, "/auth/signup", gin.H{
		"name": "Root", "email": "root@acme.test", "password": "s3cret-pass", "role": "superuser",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, "", http.MethodPost, "/auth/login", gin.H{"email": "amina@acme.test", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(t, "", http.MethodPost, "/auth/login", gin.H{"email": "amina@acme.test", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	loginToken := decode(t, w)["token"].(string)

	w = api.do(t, loginToken, http.MethodGet, "/api/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	user := decode(t, w)["user"].(map[string]any)
	assert.Equal(t, "Acme Haulage", user["company"].(map[string]any)["name"])

	w = api.do(t, loginToken, http.MethodPut, "/api/company", gin.H{"company_phone": "+254700000000"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "+254700000000", decode(t, w)["company"].(map[string]any)["phone"])
}

func TestVehiclesAreCompanyScoped(t *testing.T) {
	api := newCRUDAPI(t)
	acme := api.signup(t, "amina@acme.test", "Acme Haulage")
	rival := api.signup(t, "bo@rival.test", "Rival Freight")

	id := api.vehicle(t, acme, "kda 123a")

	w := api.do(t, acme, http.MethodPost, "/api/vehicles", gin.H{"license_plate": "KDA 123A"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, rival, http.MethodGet, "/api/vehicles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["vehicles"])

	w = api.do(t, rival, http.MethodPut, "/api/vehicles/"+itoa(id), gin.H{"make": "Scania"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, acme, http.MethodPut, "/api/vehicles/"+itoa(id), gin.H{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	v := decode(t, w)["vehicle"].(map[string]any)
	assert.Equal(t, false, v["is_active"])
	assert.Equal(t, "KDA 123A", v["license_plate"])

	w = api.do(t, acme, http.MethodDelete, "/api/vehicles/"+itoa(id), nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOrdersLifecycle(t *testing.T) {
	api := newCRUDAPI(t)
	token := api.signup(t, "amina@acme.test", "Acme Haulage")

	w := api.do(t, token, http.MethodPost, "/api/orders", gin.H{
		"customer_name":     "Kamau Stores",
		"goods_description": "Maize flour",
		"pickup_stop":       gin.H{"name": "Eldoret mill", "stop_type": "loading"},
		"delivery_stop":     gin.H{"name": "Nakuru shop"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	full := decode(t, w)
	year := time.Now().Year()
	assert.Equal(t, "ORD-"+itoa(uint(year))+"-0001", full["order_number"])
	assert.Equal(t, true, full["complete"])
	assert.Equal(t, "pickup", full["pickup_stop"].(map[string]any)["stop_type"])

	w = api.do(t, token, http.MethodPost, "/api/orders", gin.H{
		"customer_name": "Wafula", "goods_description": "Cement",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	bare := decode(t, w)
	assert.Equal(t, "ORD-"+itoa(uint(year))+"-0002", bare["order_number"])

	w = api.do(t, token, http.MethodPost, "/api/orders", gin.H{
		"customer_name": "Wafula", "goods_description": "Cement",
		"pickup_stop": gin.H{"name": "Yard", "stop_type": "delivery"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, token, http.MethodGet, "/api/orders?complete=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)["results"].([]any)
	require.Len(t, results, 1)
	assert.Equal(t, full["order_number"], results[0].(map[string]any)["order_number"])

	bareID := uint(bare["ID"].(float64))
	w = api.do(t, token, http.MethodPost, "/api/stops", gin.H{"order_id": bareID, "name": "Athi River", "stop_type": "unloading"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = api.do(t, token, http.MethodPost, "/api/stops", gin.H{"order_id": bareID, "name": "Again", "stop_type": "delivery"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = api.do(t, token, http.MethodGet, "/api/stops?order="+itoa(bareID), nil)
	assert.Len(t, decode(t, w)["results"], 1)

	w = api.do(t, token, http.MethodGet, "/api/orders/"+itoa(bareID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Athi River", decode(t, w)["delivery_stop"].(map[string]any)["name"])

	w = api.do(t, token, http.MethodDelete, "/api/orders/"+itoa(bareID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(t, token, http.MethodGet, "/api/orders/"+itoa(bareID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteOrderOnTripIsRefused(t *testing.T) {
	api := newCRUDAPI(t)
	token := api.signup(t, "amina@acme.test", "Acme Haulage")
	vehicleID := api.vehicle(t, token, "KDA 123A")

	w := api.do(t, token, http.MethodPost, "/api/orders", gin.H{
		"customer_name": "Kamau", "goods_description": "Tea",
		"pickup_stop": gin.H{"name": "Kericho"}, "delivery_stop": gin.H{"name": "Mombasa"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	order := decode(t, w)
	pickupID := uint(order["pickup_stop"].(map[string]any)["ID"].(float64))

	w = api.do(t, token, http.MethodPost, "/api/trips", gin.H{
		"vehicle_id": vehicleID, "name": "Coast run", "planned_start": "2025-06-02T06:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	tripID := uint(decode(t, w)["trip"].(map[string]any)["ID"].(float64))
	require.NoError(t, config.DB.Create(&models.TripStop{TripID: tripID, StopID: pickupID, Sequence: 1}).Error)

	w = api.do(t, token, http.MethodDelete, "/api/orders/"+itoa(uint(order["ID"].(float64))), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode(t, w)["error"], "has stops on a trip")
}

func TestTripsAreCompanyScoped(t *testing.T) {
	api := newCRUDAPI(t)
	acme := api.signup(t, "amina@acme.test", "Acme Haulage")
	rival := api.signup(t, "bo@rival.test", "Rival Freight")
	vehicleID := api.vehicle(t, acme, "KDA 123A")

	w := api.do(t, rival, http.MethodPost, "/api/trips", gin.H{
		"vehicle_id": vehicleID, "name": "Stolen", "planned_start": "2025-06-02T06:00:00Z",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, acme, http.MethodPost, "/api/trips", gin.H{"vehicle_id": vehicleID, "name": "No start"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, acme, http.MethodPost, "/api/trips", gin.H{
		"vehicle_id": vehicleID, "name": "Thika run", "planned_start": "2025-06-02T06:00:00Z",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	trip := decode(t, w)["trip"].(map[string]any)
	assert.Equal(t, models.TripDraft, trip["status"])
	tripID := uint(trip["ID"].(float64))

	access := DBTripAccess{DB: config.DB}
	claims, err := middleware.ValidateToken(acme)
	require.NoError(t, err)
	ok, err := access.CanAccess(context.Background(), claims.CompanyID, tripID)
	require.NoError(t, err)
	assert.True(t, ok)
	rivalClaims, err := middleware.ValidateToken(rival)
	require.NoError(t, err)
	ok, err = access.CanAccess(context.Background(), rivalClaims.CompanyID, tripID)
	require.NoError(t, err)
	assert.False(t, ok)

	w = api.do(t, rival, http.MethodGet, "/api/trips/"+itoa(tripID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(t, acme, http.MethodGet, "/api/trips?vehicle="+itoa(vehicleID), nil)
	assert.Len(t, decode(t, w)["results"], 1)

	w = api.do(t, acme, http.MethodPut, "/api/trips/"+itoa(tripID), gin.H{"status": "in_progress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotNil(t, decode(t, w)["trip"].(map[string]any)["actual_start_datetime"])

	w = api.do(t, acme, http.MethodPut, "/api/trips/"+itoa(tripID), gin.H{"status": "lost"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(t, acme, http.MethodDelete, "/api/trips/"+itoa(tripID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPositions(t *testing.T) {
	api := newCRUDAPI(t)
	token := api.signup(t, "amina@acme.test", "Acme Haulage")
	truck := api.vehicle(t, token, "KDA 123A")
	van := api.vehicle(t, token, "KDB 456B")

	w := api.do(t, token, http.MethodPost, "/api/positions", gin.H{
		"vehicle_id": truck, "latitude": -1.2921, "longitude": 36.8219, "timestamp": "2025-06-02T08:00:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "initial", decode(t, w)["movement"])

	// Roughly 1.1 km due north one minute later.
	w = api.do(t, token, http.MethodPost, "/api/positions", gin.H{
		"vehicle_id": truck, "latitude": -1.2821, "longitude": 36.8219, "timestamp": "2025-06-02T08:01:00Z",
		"engine_status": "on",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "move", body["movement"])
	pos := body["position"].(map[string]any)
	assert.InDelta(t, 66.7, pos["speed"], 1.0)
	assert.InDelta(t, 0, pos["heading"], 0.5)
	assert.Equal(t, "KDA 123A", pos["vehicle_license_plate"])

	w = api.do(t, token, http.MethodPost, "/api/positions", gin.H{
		"vehicle_id": van, "latitude": -4.0435, "longitude": 39.6682, "speed": 12.5, "heading": -90,
		"timestamp": "2025-06-02T11:00:00+03:00",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.InDelta(t, 270, decode(t, w)["position"].(map[string]any)["heading"], 0.001)

	for _, bad := range []gin.H{
		{"vehicle_id": truck, "latitude": 91, "longitude": 0},
		{"vehicle_id": truck, "latitude": 0, "longitude": 0, "timestamp": "yesterday"},
		{"vehicle_id": truck, "latitude": 0, "longitude": 0, "engine_status": "smoking"},
		{"vehicle_id": 999, "latitude": 0, "longitude": 0},
	} {
		w := api.do(t, token, http.MethodPost, "/api/positions", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}

	w = api.do(t, token, http.MethodGet, "/api/positions?vehicle="+itoa(truck), nil)
	results := decode(t, w)["results"].([]any)
	require.Len(t, results, 2)
	newest, err := time.Parse(time.RFC3339, results[0].(map[string]any)["timestamp"].(string))
	require.NoError(t, err)
	assert.True(t, newest.Equal(time.Date(2025, 6, 2, 8, 1, 0, 0, time.UTC)))

	w = api.do(t, token, http.MethodGet, "/api/positions/latest", nil)
	require.Equal(t, http.StatusOK, w.Code)
	latest := decode(t, w)["results"].([]any)
	require.Len(t, latest, 2)
	byVehicle := map[float64]string{}
	for _, item := range latest {
		m := item.(map[string]any)
		byVehicle[m["vehicle_id"].(float64)] = m["vehicle_license_plate"].(string)
	}
	assert.Equal(t, "KDA 123A", byVehicle[float64(truck)])
	assert.Equal(t, "KDB 456B", byVehicle[float64(van)])

	rival := api.signup(t, "bo@rival.test", "Rival Freight")
	w = api.do(t, rival, http.MethodGet, "/api/positions/latest", nil)
	assert.Empty(t, decode(t, w)["results"])
}

func TestMovementClassification(t *testing.T) {
	now := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	moving := models.Position{ID: 1, Speed: 40, Timestamp: now}
	parked := models.Position{ID: 1, Speed: 0, Timestamp: now}

	tests := []struct {
		name     string
		distance float64
		speed    float64
		timeDiff float64
		last     models.Position
		want     string
	}{
		{"first fix", 0, 0, 0, models.Position{}, "initial"},
		{"moved", 25, 30, 5, moving, "move"},
		{"came to rest", 1, 0.2, 15, moving, "stopped"},
		{"pulled away", 2, 8, 12, parked, "started"},
		{"heartbeat", 0, 0, 61, parked, "periodic"},
		{"jitter", 1, 0, 3, parked, "insignificant"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyMovement(tt.distance, tt.speed, tt.timeDiff, tt.last))
		})
	}
}

func TestGeoMath(t *testing.T) {
	// Nairobi CBD to JKIA is about 13 km east-south-east.
	d := calculateDistance(-1.2864, 36.8172, -1.3192, 36.9278)
	assert.InDelta(t, 12800, d, 300)
	b := calculateBearing(-1.2864, 36.8172, -1.3192, 36.9278)
	assert.InDelta(t, 106.5, b, 1.0)

	assert.InDelta(t, 90, calculateBearing(0, 0, 0, 1), 1e-9)
	assert.InDelta(t, 180, calculateBearing(1, 0, 0, 0), 1e-9)
}

func TestReportedHeadingIsNormalized(t *testing.T) {
	tests := []struct {
		reported float64
		want     float64
	}{
		{0, 0},
		{90, 90},
		{360, 0},
		{725, 5},
		{-90, 270},
		{-360, 0},
		{-400, 320},
		{-1000, 80},
	}
	for _, tt := range tests {
		reported := tt.reported
		got := derivedHeading(&reported, models.Position{}, models.Position{}, 0)
		assert.InDelta(t, tt.want, got, 1e-9, "reported %v", tt.reported)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.Less(t, got, 360.0)
	}
}

func TestParseTimestamp(t *testing.T) {
	got, err := parseTimestamp("2025-06-02T08:00:00.5")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 8, 0, 0, 5e8, time.UTC), got)

	got, err = parseTimestamp("2025-06-02T11:00:00+03:00")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)))

	_, err = parseTimestamp("02/06/2025")
	assert.Error(t, err)
}
