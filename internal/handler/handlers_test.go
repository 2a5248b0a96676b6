package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dashboard-api/internal/database"
	"dashboard-api/internal/domain"
	"dashboard-api/internal/logger"
	"dashboard-api/internal/middleware"
	"dashboard-api/internal/service"
	"dashboard-api/internal/storage"
)

// MockDataService é um mock do DataService para testes
type MockDataService struct {
	mock.Mock
}

func (m *MockDataService) ListSubreddits(ctx context.Context, limit int) (*domain.SubredditList, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubredditList), args.Error(1)
}

func (m *MockDataService) ListOpportunities(ctx context.Context, subredditID int64, query domain.OpportunityQuery) (*domain.OpportunityPage, error) {
	args := m.Called(ctx, subredditID, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OpportunityPage), args.Error(1)
}

func (m *MockDataService) GetOpportunity(ctx context.Context, id int64) (*domain.Opportunity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Opportunity), args.Error(1)
}

func (m *MockDataService) GetAnalytics(ctx context.Context) (*domain.Analytics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Analytics), args.Error(1)
}

func (m *MockDataService) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// stubResolver mapeia bearer tokens fixos para identidades
type stubResolver struct{}

var testIdentities = map[string]*domain.Identity{
	"user-token":  {ID: "user_1"},
	"admin-token": {ID: "admin_1", IsAdmin: true},
}

func (stubResolver) Resolve(ctx context.Context, r *http.Request) (*domain.Identity, error) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return testIdentities[token], nil
}

func testPolicies() domain.PolicySet {
	return domain.PolicySet{
		User: domain.Policy{
			Name:           "user",
			Auth:           domain.AuthRequired,
			UserRateLimit:  domain.NewRateLimit(100, 60),
			IPRateLimit:    domain.NewRateLimit(200, 60),
			AllowedOrigins: domain.NewOriginList("https://app.example.com"),
		}.WithBucket("user"),
		Admin: domain.Policy{
			Name:           "admin",
			Auth:           domain.AuthRequired,
			AdminOnly:      true,
			UserRateLimit:  domain.NewRateLimit(30, 60),
			IPRateLimit:    domain.NewRateLimit(60, 60),
			AllowedOrigins: domain.NewOriginList("https://admin.example.com"),
		}.WithBucket("admin"),
		Public: domain.Policy{
			Name:           "public",
			Auth:           domain.AuthNone,
			IPRateLimit:    domain.NewRateLimit(200, 60),
			AllowedOrigins: domain.NewOriginList(domain.WildcardOrigin),
		}.WithBucket("public"),
	}
}

type handlerFixture struct {
	router   *gin.Engine
	store    *database.MemoryStore
	limiter  *service.RateLimiterService
	handlers *Handlers
}

// newHandlerFixture monta o router completo com storage e dados em memória
func newHandlerFixture(t *testing.T, mutate ...func(*Dependencies)) *handlerFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	appLogger := logger.NewLoggerWithOutput("error", "json", io.Discard)
	rateStorage := storage.NewMemoryStorage(appLogger)
	t.Cleanup(func() { rateStorage.Close() })

	limiter := service.NewRateLimiterService(rateStorage, appLogger)
	limiter.TrackPolicies(testPolicies())
	store := database.NewMemoryStore()

	deps := Dependencies{
		Guard:         middleware.NewGuard(limiter, stubResolver{}, nil, appLogger),
		Data:          store,
		Activity:      store,
		Limiter:       limiter,
		LimiterHealth: limiter,
		Policies:      testPolicies(),
		Environment:   "test",
		Logger:        appLogger,
	}
	for _, m := range mutate {
		m(&deps)
	}

	handlers := NewHandlers(deps)
	router := gin.New()
	require.NoError(t, handlers.SetupRoutes(router))

	return &handlerFixture{router: router, store: store, limiter: limiter, handlers: handlers}
}

func (f *handlerFixture) do(method, path, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestSetupRoutes_RegistersPreflightForEveryRoute(t *testing.T) {
	fx := newHandlerFixture(t)

	for _, r := range fx.handlers.routes() {
		t.Run(r.path, func(t *testing.T) {
			origin := "https://app.example.com"
			if r.policy.AdminOnly {
				origin = "https://admin.example.com"
			}
			req := httptest.NewRequest(http.MethodOptions, r.path, nil)
			req.Header.Set("Origin", origin)
			w := httptest.NewRecorder()
			fx.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.NotEmpty(t, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestSetupRoutes_RequiresGuard(t *testing.T) {
	handlers := NewHandlers(Dependencies{Policies: testPolicies()})
	assert.Error(t, handlers.SetupRoutes(gin.New()))
}

func TestSetupRoutes_InvalidPolicy(t *testing.T) {
	policies := testPolicies()
	policies.User.UserRateLimit = &domain.RateLimit{Max: 0, Window: time.Minute}

	appLogger := logger.NewLoggerWithOutput("error", "json", io.Discard)
	limiter := service.NewRateLimiterService(storage.NewMemoryStorage(appLogger), appLogger)
	handlers := NewHandlers(Dependencies{
		Guard:    middleware.NewGuard(limiter, stubResolver{}, nil, appLogger),
		Policies: policies,
	})

	assert.Error(t, handlers.SetupRoutes(gin.New()))
}

func TestSetupRoutes_Fallbacks(t *testing.T) {
	fx := newHandlerFixture(t)

	notFound := fx.do(http.MethodGet, "/api/unknown", "user-token", "")
	assert.Equal(t, http.StatusNotFound, notFound.Code)
	assert.Equal(t, domain.CodeNotFound, decode(t, notFound)["code"])

	wrongMethod := fx.do(http.MethodPut, "/api/database/communities", "user-token", "")
	assert.Equal(t, http.StatusMethodNotAllowed, wrongMethod.Code)
	assert.Equal(t, domain.CodeMethodNotAllowed, decode(t, wrongMethod)["code"])
}

func TestCommunitiesHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/api/database/communities", "user-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=600", w.Header().Get("Cache-Control"))

	response := decode(t, w)
	assert.Equal(t, true, response["success"])
	assert.Equal(t, float64(3), response["totalCount"])

	data := response["data"].([]interface{})
	require.Len(t, data, 3)
	first := data[0].(map[string]interface{})
	assert.Equal(t, "r/startups", first["name"])
	assert.Equal(t, float64(4), first["opportunities"])
	second := data[1].(map[string]interface{})
	assert.Equal(t, "1.9M", second["memberCount"])
	assert.Equal(t, "Discussions about small business and related topics", second["description"])

	meta := response["meta"].(map[string]interface{})
	assert.Equal(t, "communities", meta["endpoint"])
	assert.Equal(t, "user_1", meta["requestedBy"])
	assert.Equal(t, "authenticated", meta["securityLevel"])
	assert.NotEmpty(t, meta["filter"])
}

func TestCommunitiesHandler_RequiresAuthentication(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/api/database/communities", "", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, domain.CodeUnauthenticated, decode(t, w)["code"])
}

func TestSubredditsHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/api/database/subreddits?limit=1", "user-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Len(t, response["data"], 1)
	assert.Equal(t, float64(3), response["totalCount"])
	assert.Equal(t, "subreddits", response["meta"].(map[string]interface{})["endpoint"])
}

func TestOpportunitiesListHandler_Validation(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		expectedCode string
	}{
		{name: "Missing subredditId", query: "", expectedCode: "INVALID_SUBREDDIT_ID"},
		{name: "Negative subredditId", query: "subredditId=-1", expectedCode: "INVALID_SUBREDDIT_ID"},
		{name: "Zero page", query: "subredditId=1&page=0", expectedCode: "INVALID_PAGE"},
		{name: "Non numeric page", query: "subredditId=1&page=first", expectedCode: "INVALID_PAGE"},
		{name: "Negative limit", query: "subredditId=1&limit=-5", expectedCode: "INVALID_LIMIT"},
		{name: "Zero days", query: "subredditId=1&days=0", expectedCode: "INVALID_DAYS"},
		{name: "Unknown sortBy", query: "subredditId=1&sortBy=votes", expectedCode: "INVALID_SORT_BY"},
		{name: "Unknown sortOrder", query: "subredditId=1&sortOrder=up", expectedCode: "INVALID_SORT_ORDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newHandlerFixture(t)

			w := fx.do(http.MethodGet, "/api/database/opportunities-list?"+tt.query, "user-token", "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.expectedCode, decode(t, w)["code"])
		})
	}
}

func TestOpportunitiesListHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/api/database/opportunities-list?subredditId=1&limit=2&sortBy=date&sortOrder=asc", "user-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=600", w.Header().Get("Cache-Control"))

	response := decode(t, w)
	data := response["data"].([]interface{})
	require.Len(t, data, 2)
	assert.Equal(t, float64(103), data[0].(map[string]interface{})["id"])

	pagination := response["pagination"].(map[string]interface{})
	assert.Equal(t, float64(3), pagination["total"])
	assert.Equal(t, float64(2), pagination["totalPages"])
	assert.Equal(t, true, pagination["hasNext"])

	filters := response["filters"].(map[string]interface{})
	assert.Equal(t, "date", filters["sortBy"])
	assert.Equal(t, float64(30), filters["days"])
}

func TestOpportunitiesListHandler_LimitIsCapped(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/api/database/opportunities-list?subredditId=1&limit=500", "user-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	filters := decode(t, w)["filters"].(map[string]interface{})
	assert.Equal(t, float64(50), filters["limit"])
}

func TestOpportunityDetailsHandler(t *testing.T) {
	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCode   string
	}{
		{name: "Missing id", query: "", expectedStatus: http.StatusBadRequest, expectedCode: "INVALID_OPPORTUNITY_ID"},
		{name: "Invalid id", query: "?id=abc", expectedStatus: http.StatusBadRequest, expectedCode: "INVALID_OPPORTUNITY_ID"},
		{name: "Unknown id", query: "?id=999", expectedStatus: http.StatusNotFound, expectedCode: domain.CodeNotFound},
		{name: "Existing id", query: "?id=301", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newHandlerFixture(t)

			w := fx.do(http.MethodGet, "/api/database/opportunity-details"+tt.query, "user-token", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			response := decode(t, w)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, response["code"])
				return
			}
			assert.Equal(t, "Churn alerts from billing data", response["data"].(map[string]interface{})["title"])
			assert.Equal(t, float64(301), response["meta"].(map[string]interface{})["id"])
		})
	}
}

func TestAnalyticsHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/api/database/analytics", "user-token", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "public, max-age=600, s-maxage=600", w.Header().Get("Cache-Control"))
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(7), data["totalOpportunities"])
}

func TestDataHandlers_UpstreamFailure(t *testing.T) {
	data := new(MockDataService)
	data.On("ListSubreddits", mock.Anything, 20).Return(nil, errors.New("connection reset"))
	data.On("GetAnalytics", mock.Anything).Return(nil, errors.New("timeout"))
	data.On("GetOpportunity", mock.Anything, int64(5)).Return(nil, errors.New("timeout"))

	fx := newHandlerFixture(t, func(d *Dependencies) { d.Data = data })

	for _, path := range []string{
		"/api/database/communities",
		"/api/database/subreddits",
		"/api/database/analytics",
		"/api/database/opportunity-details?id=5",
	} {
		t.Run(path, func(t *testing.T) {
			w := fx.do(http.MethodGet, path, "user-token", "")

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			response := decode(t, w)
			assert.Equal(t, domain.CodeInternal, response["code"])
			// detalhes do colaborador não vazam
			assert.Equal(t, "Internal server error", response["error"])
		})
	}

	data.AssertExpectations(t)
}

func TestAdminDataHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	denied := fx.do(http.MethodGet, "/api/database/admin", "user-token", "")
	assert.Equal(t, http.StatusForbidden, denied.Code)
	assert.Equal(t, domain.CodeForbidden, decode(t, denied)["code"])

	w := fx.do(http.MethodGet, "/api/database/admin", "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, "admin_1", response["adminId"])
	assert.Equal(t, "192.0.2.1", response["clientIp"])
	assert.Equal(t, "test", response["environment"])
}

func TestActivityHistoryHandler(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, fx.store.TrackActivity(ctx, domain.Activity{
			UserID:       "user_1",
			ActivityType: "view",
			Timestamp:    time.Now().Add(-time.Duration(i) * time.Hour),
		}))
	}

	w := fx.do(http.MethodGet, "/api/user/activity-history?limit=2", "user-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	data := decode(t, w)["data"].(map[string]interface{})
	activities := data["activities"].([]interface{})
	require.Len(t, activities, 2)
	assert.Equal(t, "Just now", activities[0].(map[string]interface{})["timeText"])
	assert.Equal(t, "1h ago", activities[1].(map[string]interface{})["timeText"])
	assert.Equal(t, float64(3), data["totalCount"])
	assert.Equal(t, true, data["hasMore"])

	cleared := fx.do(http.MethodDelete, "/api/user/activity-history", "user-token", "")
	require.Equal(t, http.StatusOK, cleared.Code)
	assert.Equal(t, "Activity history cleared successfully", decode(t, cleared)["message"])

	count, err := fx.store.ActivityCount(ctx, "user_1")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDashboardDataHandler(t *testing.T) {
	tests := []struct {
		name         string
		query        string
		expectedDays float64
	}{
		{name: "Default window", query: "", expectedDays: 2},
		{name: "Clamped to maximum", query: "?days=1000", expectedDays: 365},
		{name: "Clamped to minimum", query: "?days=-3", expectedDays: 1},
		{name: "Invalid falls back", query: "?days=week", expectedDays: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newHandlerFixture(t)

			w := fx.do(http.MethodGet, "/api/user/dashboard-data"+tt.query, "user-token", "")

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, "private, no-cache", w.Header().Get("Cache-Control"))
			data := decode(t, w)["data"].(map[string]interface{})
			assert.Equal(t, tt.expectedDays, data["daysBack"])
		})
	}
}

func TestBookmarksHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	t.Run("Add bookmark", func(t *testing.T) {
		w := fx.do(http.MethodPost, "/api/user/bookmarks", "user-token", `{"opportunityId": 101}`)
		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, true, data["bookmarked"])
		assert.Equal(t, false, data["wasAlreadyBookmarked"])
	})

	t.Run("Add existing bookmark", func(t *testing.T) {
		w := fx.do(http.MethodPost, "/api/user/bookmarks", "user-token", `{"opportunityId": 101}`)
		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, true, data["wasAlreadyBookmarked"])
	})

	t.Run("Invalid opportunityId", func(t *testing.T) {
		for _, body := range []string{`{"opportunityId": "101"}`, `{}`, `{"opportunityId": -1}`, `not json`} {
			w := fx.do(http.MethodPost, "/api/user/bookmarks", "user-token", body)
			assert.Equal(t, http.StatusBadRequest, w.Code, body)
			assert.Equal(t, "INVALID_OPPORTUNITY_ID", decode(t, w)["code"], body)
		}
	})

	t.Run("Unknown opportunity", func(t *testing.T) {
		w := fx.do(http.MethodPost, "/api/user/bookmarks", "user-token", `{"opportunityId": 999}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Check bookmark", func(t *testing.T) {
		w := fx.do(http.MethodGet, "/api/user/bookmarks?opportunityId=101", "user-token", "")
		require.Equal(t, http.StatusOK, w.Code)
		response := decode(t, w)
		assert.Equal(t, true, response["data"].(map[string]interface{})["isBookmarked"])
		assert.Equal(t, "check-bookmark", response["meta"].(map[string]interface{})["endpoint"])
	})

	t.Run("Check with invalid id", func(t *testing.T) {
		w := fx.do(http.MethodGet, "/api/user/bookmarks?opportunityId=abc", "user-token", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("List bookmarks", func(t *testing.T) {
		w := fx.do(http.MethodGet, "/api/user/bookmarks", "user-token", "")
		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, float64(1), data["count"])
		assert.Equal(t, []interface{}{float64(101)}, data["bookmarkIds"])
	})

	t.Run("Remove without id", func(t *testing.T) {
		w := fx.do(http.MethodDelete, "/api/user/bookmarks", "user-token", "")
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "MISSING_OPPORTUNITY_ID", decode(t, w)["code"])
	})

	t.Run("Remove bookmark", func(t *testing.T) {
		w := fx.do(http.MethodDelete, "/api/user/bookmarks?opportunityId=101", "user-token", "")
		require.Equal(t, http.StatusOK, w.Code)
		data := decode(t, w)["data"].(map[string]interface{})
		assert.Equal(t, true, data["wasBookmarked"])
		assert.Equal(t, false, data["bookmarked"])
	})
}

func TestTrackActivityHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	missing := fx.do(http.MethodPost, "/api/user/track-activity", "user-token", `{"resourceId": 1}`)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Equal(t, "MISSING_ACTIVITY_TYPE", decode(t, missing)["code"])

	malformed := fx.do(http.MethodPost, "/api/user/track-activity", "user-token", `{"activityType":`)
	assert.Equal(t, http.StatusBadRequest, malformed.Code)
	assert.Equal(t, "INVALID_BODY", decode(t, malformed)["code"])

	w := fx.do(http.MethodPost, "/api/user/track-activity", "user-token",
		`{"activityType": "view", "resourceId": 301, "resourceType": "opportunity", "metadata": {"source": "list"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "track-activity", decode(t, w)["meta"].(map[string]interface{})["endpoint"])

	history, err := fx.store.ActivityHistory(context.Background(), "user_1", domain.ActivityQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "301", history[0].ResourceID)
	assert.Equal(t, "opportunity", history[0].ResourceType)
	assert.Equal(t, "list", history[0].Metadata["source"])
}

func TestJSONBodyLimit(t *testing.T) {
	fx := newHandlerFixture(t)
	oversized := `{"activityType": "view", "metadata": {"blob": "` + strings.Repeat("a", int(maxJSONBody)) + `"}}`

	tests := []struct {
		name  string
		path  string
		token string
		body  string
	}{
		{name: "Track activity", path: "/api/user/track-activity", token: "user-token", body: oversized},
		{name: "Add bookmark", path: "/api/user/bookmarks", token: "user-token", body: `{"opportunityId": 301, "pad": "` + strings.Repeat("a", int(maxJSONBody)) + `"}`},
		{name: "Admin reset", path: "/admin/rate-limits/reset", token: "admin-token", body: `{"key": "user_1", "scope": "user", "pad": "` + strings.Repeat("a", int(maxJSONBody)) + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fx.do(http.MethodPost, tt.path, tt.token, tt.body)

			assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
			assert.Equal(t, domain.CodeBodyTooLarge, decode(t, w)["code"])
		})
	}

	// nada foi registrado
	history, err := fx.store.ActivityHistory(context.Background(), "user_1", domain.ActivityQuery{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestAdminStatusHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	// consome uma unidade da cota do usuário
	require.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/api/database/analytics", "user-token", "").Code)

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		expectedCode   string
	}{
		{name: "Missing key", query: "?scope=user", expectedStatus: http.StatusBadRequest, expectedCode: "MISSING_KEY"},
		{name: "Invalid scope", query: "?key=user_1&scope=token", expectedStatus: http.StatusBadRequest, expectedCode: "INVALID_SCOPE"},
		{name: "User status", query: "?key=user_1&scope=user", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := fx.do(http.MethodGet, "/admin/rate-limits/status"+tt.query, "admin-token", "")

			assert.Equal(t, tt.expectedStatus, w.Code)
			response := decode(t, w)
			if tt.expectedCode != "" {
				assert.Equal(t, tt.expectedCode, response["code"])
				return
			}
			assert.Equal(t, "user", response["scope"])
			assert.Equal(t, "user", response["bucket"])
			assert.Equal(t, float64(1), response["current"])
			assert.Equal(t, float64(100), response["limit"])
			assert.Equal(t, float64(99), response["remaining"])
			assert.Equal(t, float64(60), response["window_seconds"])
			assert.Contains(t, response, "reset_time")
			// um contador por preset com limite de usuário
			assert.Len(t, response["counters"], 2)
		})
	}
}

func TestAdminStatusHandler_Bucket(t *testing.T) {
	fx := newHandlerFixture(t)
	require.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/api/database/analytics", "user-token", "").Code)

	admin := fx.do(http.MethodGet, "/admin/rate-limits/status?key=user_1&scope=user&bucket=admin", "admin-token", "")
	require.Equal(t, http.StatusOK, admin.Code)
	response := decode(t, admin)
	assert.Equal(t, "admin", response["bucket"])
	assert.Equal(t, float64(0), response["current"])
	assert.Equal(t, float64(30), response["limit"])
	assert.NotContains(t, response, "reset_time")

	unknown := fx.do(http.MethodGet, "/admin/rate-limits/status?key=user_1&scope=user&bucket=partner", "admin-token", "")
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

// Admin que esgota a cota do preset de usuário continua com a cota do preset admin
func TestAdminQuotaIsolatedFromUserPreset(t *testing.T) {
	fx := newHandlerFixture(t)

	for i := 0; i < 30; i++ {
		require.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/api/database/analytics", "admin-token", "").Code)
	}

	w := fx.do(http.MethodGet, "/admin/rate-limits/status?key=admin_1&scope=user", "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	counters := map[string]float64{}
	for _, raw := range response["counters"].([]interface{}) {
		counter := raw.(map[string]interface{})
		counters[counter["bucket"].(string)] = counter["current"].(float64)
	}
	assert.Equal(t, float64(30), counters["user"])
	assert.Equal(t, float64(1), counters["admin"])
}

func TestAdminStatusHandler_RequiresAdmin(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/admin/rate-limits/status?key=user_1&scope=user", "user-token", "")

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminResetHandler(t *testing.T) {
	fx := newHandlerFixture(t)
	ctx := context.Background()

	require.Equal(t, http.StatusOK, fx.do(http.MethodGet, "/api/database/analytics", "user-token", "").Code)

	invalid := fx.do(http.MethodPost, "/admin/rate-limits/reset", "admin-token", `{"key": "user_1"}`)
	assert.Equal(t, http.StatusBadRequest, invalid.Code)
	assert.Equal(t, "INVALID_BODY", decode(t, invalid)["code"])

	badScope := fx.do(http.MethodPost, "/admin/rate-limits/reset", "admin-token", `{"key": "user_1", "scope": "token"}`)
	assert.Equal(t, http.StatusBadRequest, badScope.Code)
	assert.Equal(t, "INVALID_SCOPE", decode(t, badScope)["code"])

	w := fx.do(http.MethodPost, "/admin/rate-limits/reset", "admin-token", `{"key": "user_1", "scope": "user"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", decode(t, w)["status"])

	statuses, err := fx.limiter.Status(ctx, domain.UserScope, "user_1")
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, status := range statuses {
		assert.Zero(t, status.Count, status.Bucket)
	}
}

func TestMetricsHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	fx.do(http.MethodGet, "/api/database/analytics", "", "")

	w := fx.do(http.MethodGet, "/metrics", "admin-token", "")
	require.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	assert.Equal(t, "Dashboard API", response["service"])
	assert.Equal(t, "healthy", response["storage"])
	assert.Contains(t, response, "uptime")
	assert.Contains(t, response, "system")

	guard := response["guard"].(map[string]interface{})
	rejected := guard["rejected"].(map[string]interface{})
	assert.Equal(t, float64(1), rejected[string(domain.Unauthenticated)])

	assert.Equal(t, http.StatusForbidden, fx.do(http.MethodGet, "/metrics", "user-token", "").Code)
}

func TestHealthHandler(t *testing.T) {
	fx := newHandlerFixture(t)

	w := fx.do(http.MethodGet, "/health", "", "")

	require.Equal(t, http.StatusOK, w.Code)
	response := decode(t, w)
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "Dashboard API", response["service"])
	checks := response["checks"].(map[string]interface{})
	assert.Equal(t, "healthy", checks["storage"])
	assert.Equal(t, "healthy", checks["database"])
}

func TestHealthHandler_Degraded(t *testing.T) {
	data := new(MockDataService)
	data.On("Health", mock.Anything).Return(errors.New("database down"))

	fx := newHandlerFixture(t, func(d *Dependencies) { d.Data = data })

	w := fx.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	response := decode(t, w)
	assert.Equal(t, "degraded", response["status"])
	assert.Equal(t, "unhealthy", response["checks"].(map[string]interface{})["database"])
	data.AssertExpectations(t)
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		ago      time.Duration
		expected string
	}{
		{30 * time.Second, "Just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{25 * time.Hour, "Yesterday"},
		{4 * 24 * time.Hour, "4d ago"},
		{9 * 24 * time.Hour, "May 1"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, relativeTime(now, now.Add(-tt.ago)))
		})
	}
}

func TestFormatCount(t *testing.T) {
	assert.Equal(t, "950", formatCount(950))
	assert.Equal(t, "210K", formatCount(210000))
	assert.Equal(t, "1.9M", formatCount(1900000))
	assert.Equal(t, "2M", formatCount(2000000))
}

func TestResourceIDString(t *testing.T) {
	assert.Equal(t, "", resourceIDString(nil))
	assert.Equal(t, "abc", resourceIDString("abc"))
	assert.Equal(t, "301", resourceIDString(float64(301)))
	assert.Equal(t, "true", resourceIDString(true))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
