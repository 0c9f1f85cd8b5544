package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/linkrelay/go-link-relay/internal/config"
	"github.com/linkrelay/go-link-relay/internal/domain"
	"github.com/linkrelay/go-link-relay/internal/repo"
	"github.com/linkrelay/go-link-relay/internal/services"
	"github.com/linkrelay/go-link-relay/internal/telegram"
)

// stubClient satisfies telegram.Client; the router tests never start the
// queue worker, so no call ever reaches the platform.
type stubClient struct{}

func (stubClient) FetchMessage(context.Context, telegram.Peer, int) (*telegram.Message, error) {
	return nil, telegram.ErrChannelInvalid
}
func (stubClient) JoinChannel(context.Context, telegram.Peer) error  { return nil }
func (stubClient) LeaveChannel(context.Context, telegram.Peer) error { return nil }
func (stubClient) ForwardMessage(context.Context, string, *telegram.Message) error {
	return nil
}
func (stubClient) ResolveChannelID(context.Context, telegram.Peer) (int64, bool) { return 0, false }

func newTestRouter(t *testing.T) (*gin.Engine, Deps) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:httpapi_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	client := stubClient{}
	dedup := &services.DedupStore{DB: db}
	tracker := &services.SubscriptionTracker{DB: db, Client: client}
	fwd := services.NewForwarder(client, dedup, tracker, services.ForwarderOptions{})
	retry := &services.RetryWorker{
		DB:        db,
		Forwarder: fwd,
		Tracker:   tracker,
		Client:    client,
		Targets:   []string{"@t1"},
	}

	deps := Deps{DB: db, Forwarder: fwd, Dedup: dedup, Tracker: tracker, Retry: retry}

	cfg := config.Config{
		APIBasePath:    "/api/v1",
		RateRPS:        100,
		RateBurst:      100,
		TargetChannels: []string{"@t1"},
	}

	r := gin.New()
	RegisterRoutes(r, deps, cfg)
	return r, deps
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health body = %s", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID header")
	}
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := newTestRouter(t)
	w := doJSON(t, r, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics body missing collector output")
	}
}

func TestRouter_EnqueueLink(t *testing.T) {
	r, deps := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/links", `{"link":"https://t.me/source/5"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Queued     bool `json:"queued"`
		QueueDepth int  `json:"queue_depth"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Queued || resp.QueueDepth != 1 {
		t.Fatalf("resp = %+v", resp)
	}
	if deps.Forwarder.QueueDepth() != 1 {
		t.Fatalf("queue depth = %d", deps.Forwarder.QueueDepth())
	}
}

func TestRouter_EnqueueLink_Invalid(t *testing.T) {
	r, _ := newTestRouter(t)

	// unparseable link
	w := doJSON(t, r, http.MethodPost, "/api/v1/links", `{"link":"not a link"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid_link") {
		t.Fatalf("body = %s", w.Body.String())
	}

	// missing body field
	w = doJSON(t, r, http.MethodPost, "/api/v1/links", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bad_request") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestRouter_Status(t *testing.T) {
	r, deps := newTestRouter(t)
	ctx := context.Background()

	if err := deps.Dedup.MarkProcessed(ctx, "-100321:5"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if _, err := repo.AppendPending(ctx, deps.DB, "https://t.me/x/1", "@x", domain.PendingWaitingApproval, ""); err != nil {
		t.Fatalf("AppendPending: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		QueueDepth     int   `json:"queue_depth"`
		JoinedChannels int64 `json:"joined_channels"`
		Dedup          struct {
			Total int64 `json:"total"`
		} `json:"dedup"`
		Pending map[string]int64 `json:"pending"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Dedup.Total != 1 {
		t.Fatalf("dedup total = %d, want 1", resp.Dedup.Total)
	}
	if resp.Pending[domain.PendingWaitingApproval] != 1 {
		t.Fatalf("pending = %v", resp.Pending)
	}
}

func TestRouter_ListPending(t *testing.T) {
	r, deps := newTestRouter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		link := fmt.Sprintf("https://t.me/x/%d", i)
		if _, err := repo.AppendPending(ctx, deps.DB, link, "@x", domain.PendingWaitingApproval, ""); err != nil {
			t.Fatalf("AppendPending: %v", err)
		}
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/pending?page=1&page_size=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Total    int64                   `json:"total"`
		Page     int                     `json:"page"`
		PageSize int                     `json:"page_size"`
		Items    []domain.PendingForward `json:"items"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 3 || resp.PageSize != 2 || len(resp.Items) != 2 {
		t.Fatalf("resp = %+v", resp)
	}
	// newest first
	if resp.Items[0].ID < resp.Items[1].ID {
		t.Fatalf("items not in descending id order: %d, %d", resp.Items[0].ID, resp.Items[1].ID)
	}
}

func TestRouter_RunRetry(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/pending/retry", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"attempted":0`) {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestRouter_NoRouteAndNoMethod(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doJSON(t, r, http.MethodGet, "/nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("no-route status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Fatalf("no-route body = %s", w.Body.String())
	}

	w = doJSON(t, r, http.MethodDelete, "/health", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("no-method status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "method_not_allowed") {
		t.Fatalf("no-method body = %s", w.Body.String())
	}
}

func TestGroupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if g := groupWithPrefix(r, ""); g.BasePath() != "/" {
		t.Fatalf("empty prefix base = %q", g.BasePath())
	}
	if g := groupWithPrefix(r, "/"); g.BasePath() != "/" {
		t.Fatalf("root prefix base = %q", g.BasePath())
	}
	if g := groupWithPrefix(r, "/api/v1"); g.BasePath() != "/api/v1" {
		t.Fatalf("prefix base = %q", g.BasePath())
	}
}
