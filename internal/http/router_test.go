package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gorm.io/gorm"

	"github.com/pricehound/go-price-backend/internal/config"
	"github.com/pricehound/go-price-backend/internal/repo"
	"github.com/pricehound/go-price-backend/internal/scrape"
	"github.com/pricehound/go-price-backend/internal/search"
)

const grinderPage = `<!doctype html><html><head>
<meta property="og:title" content="Coffee Grinder Pro">
<meta property="product:price:amount" content="89.90">
<meta property="og:image" content="https://cdn.shop.example/grinder.jpg">
</head><body><h1>Coffee Grinder Pro</h1></body></html>`

func testConfig() config.Config {
	return config.Config{
		GinMode:         gin.TestMode,
		APIBasePath:     "/api/v1",
		DefaultLocale:   "en",
		DefaultCurrency: "USD",
		RateRPS:         1000,
		RateBurst:       1000,
		IdempotencyTTL:  time.Hour,
		Scrape:          config.ScrapeConfig{MaxAttempts: 1},
	}
}

// newTestRouter builds a full engine over a throwaway database and a canned
// page fetcher.
func newTestRouter(t *testing.T, pages map[string]string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "router.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	fetcher := scrape.FetcherFunc(func(_ context.Context, rawURL string) (string, error) {
		doc, ok := pages[rawURL]
		if !ok {
			return "", errors.New("fetch: no route")
		}
		return doc, nil
	})

	r := gin.New()
	RegisterRoutes(r, db, fetcher, search.NewProductIndex(nil), testConfig())
	return r, db
}

func do(r *gin.Engine, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(r, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(r, http.MethodGet, "/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["code"] != "not_found" {
		t.Errorf("code = %v", body["code"])
	}
}

func TestCreateProductEndToEnd(t *testing.T) {
	r, _ := newTestRouter(t, map[string]string{
		"https://shop.example/grinder": grinderPage,
	})

	w := do(r, http.MethodPost, "/api/v1/products",
		`{"url":"https://shop.example/grinder"}`,
		map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var product struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if product.Title != "Coffee Grinder Pro" {
		t.Errorf("title = %q", product.Title)
	}

	// The listing sees it.
	w = do(r, http.MethodGet, "/api/v1/products", "", map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 || list.Items[0].ID != product.ID {
		t.Errorf("list = %+v", list)
	}

	// Search finds it by a title fragment.
	w = do(r, http.MethodGet, "/api/v1/products/search?q=grinder", "", map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), product.ID) {
		t.Errorf("search missed the product: %s", w.Body.String())
	}

	// The detected store is listed.
	w = do(r, http.MethodGet, "/api/v1/stores", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stores status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "shop.example") {
		t.Errorf("stores = %s", w.Body.String())
	}
}

func TestCreateProductIdempotentReplay(t *testing.T) {
	r, _ := newTestRouter(t, map[string]string{
		"https://shop.example/grinder": grinderPage,
	})

	hdr := map[string]string{"X-User-ID": "u1", "Idempotency-Key": "create-1"}
	body := `{"url":"https://shop.example/grinder"}`

	first := do(r, http.MethodPost, "/api/v1/products", body, hdr)
	if first.Code != http.StatusCreated {
		t.Fatalf("first status = %d body = %s", first.Code, first.Body.String())
	}
	second := do(r, http.MethodPost, "/api/v1/products", body, hdr)
	if second.Code != http.StatusOK {
		t.Fatalf("replay status = %d body = %s", second.Code, second.Body.String())
	}

	var a, b struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(first.Body.Bytes(), &a); err != nil {
		t.Fatalf("unmarshal first: %v", err)
	}
	if err := json.Unmarshal(second.Body.Bytes(), &b); err != nil {
		t.Fatalf("unmarshal second: %v", err)
	}
	if a.ID != b.ID {
		t.Errorf("replay returned a different product: %s vs %s", a.ID, b.ID)
	}

	// Only one product exists.
	w := do(r, http.MethodGet, "/api/v1/products", "", map[string]string{"X-User-ID": "u1"})
	var list struct {
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if list.Total != 1 {
		t.Errorf("total = %d, want 1", list.Total)
	}
}

func TestCreateProductBadIdempotencyKey(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(r, http.MethodPost, "/api/v1/products",
		`{"url":"https://shop.example/grinder"}`,
		map[string]string{"Idempotency-Key": "bad key with spaces"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestUrlPricesAndStats(t *testing.T) {
	r, _ := newTestRouter(t, map[string]string{
		"https://shop.example/grinder": grinderPage,
	})

	w := do(r, http.MethodPost, "/api/v1/products",
		`{"url":"https://shop.example/grinder"}`,
		map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var product struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &product); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	w = do(r, http.MethodGet, "/api/v1/products/"+product.ID+"/urls", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("urls status = %d", w.Code)
	}
	var urls []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &urls); err != nil {
		t.Fatalf("unmarshal urls: %v", err)
	}
	if len(urls) != 1 {
		t.Fatalf("urls = %d, want 1", len(urls))
	}

	w = do(r, http.MethodGet, "/api/v1/urls/"+urls[0].ID+"/prices", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("prices status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "89.9") {
		t.Errorf("prices = %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/v1/urls/"+urls[0].ID+"/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats status = %d", w.Code)
	}
	var stats struct {
		Count  int64 `json:"count"`
		Ledger struct {
			Min float64 `json:"min"`
		} `json:"ledger"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Count != 1 || stats.Ledger.Min != 89.90 {
		t.Errorf("stats = %+v", stats)
	}

	// Unknown URL id is a JSON 404.
	w = do(r, http.MethodGet, "/api/v1/urls/ghost/stats", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("ghost stats status = %d", w.Code)
	}
}

func TestStoreDetectPreviewDoesNotPersist(t *testing.T) {
	r, _ := newTestRouter(t, map[string]string{
		"https://shop.example/grinder": grinderPage,
	})

	w := do(r, http.MethodPost, "/api/v1/stores/detect",
		`{"url":"https://shop.example/grinder"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("detect status = %d body = %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "shop.example") {
		t.Errorf("detect body = %s", w.Body.String())
	}

	w = do(r, http.MethodGet, "/api/v1/stores", "", nil)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("stores persisted by preview: %s", w.Body.String())
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(r, http.MethodGet, "/health", "", nil)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("nosniff header = %q", got)
	}
	if got := w.Header().Get("X-Request-ID"); got == "" {
		t.Error("missing X-Request-ID")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("ACAO = %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(r, http.MethodPatch, "/api/v1/products", "", nil)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "method_not_allowed") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestBackupRoundTripOverHTTP(t *testing.T) {
	pages := map[string]string{"https://shop.example/grinder": grinderPage}

	source, srcDB := newTestRouter(t, pages)
	if _, err := repo.EnsureUser(context.Background(), srcDB, "u1", "owner@example.com", "Owner"); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	w := do(source, http.MethodPost, "/api/v1/products",
		`{"url":"https://shop.example/grinder"}`,
		map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	w = do(source, http.MethodGet, "/api/v1/backup", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	payload := w.Body.String()
	if !strings.Contains(payload, "Coffee Grinder Pro") || !strings.Contains(payload, "owner@example.com") {
		t.Fatalf("export payload = %s", payload)
	}

	target, dstDB := newTestRouter(t, pages)
	if _, err := repo.EnsureUser(context.Background(), dstDB, "u2", "owner@example.com", "Owner"); err != nil {
		t.Fatalf("seed target user: %v", err)
	}
	w = do(target, http.MethodPost, "/api/v1/backup", payload, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("import status = %d body = %s", w.Code, w.Body.String())
	}
	var sum struct {
		Products int `json:"products"`
		Urls     int `json:"urls"`
		Prices   int `json:"prices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if sum.Products != 1 || sum.Urls != 1 || sum.Prices != 1 {
		t.Errorf("summary = %+v", sum)
	}

	// The restored title is searchable on the target.
	w = do(target, http.MethodGet, "/api/v1/products/search?q=grinder", "", nil)
	if !strings.Contains(w.Body.String(), "Coffee Grinder Pro") {
		t.Errorf("search after import = %s", w.Body.String())
	}
}

func TestScrapeRunOverHTTP(t *testing.T) {
	pages := map[string]string{"https://shop.example/grinder": grinderPage}
	r, _ := newTestRouter(t, pages)

	w := do(r, http.MethodPost, "/api/v1/products",
		`{"url":"https://shop.example/grinder"}`,
		map[string]string{"X-User-ID": "u1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	// Same price on the same day dedups, so the pass reports a skip.
	w = do(r, http.MethodPost, "/api/v1/scrape/run", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("run status = %d body = %s", w.Code, w.Body.String())
	}
	var sum struct {
		Total   int `json:"total"`
		Skipped int `json:"skipped"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &sum); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if sum.Total != 1 || sum.Skipped != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestNotificationTestRequiresUser(t *testing.T) {
	r, _ := newTestRouter(t, nil)
	w := do(r, http.MethodPost, "/api/v1/notifications/test", "", map[string]string{"X-User-ID": "ghost"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
}
