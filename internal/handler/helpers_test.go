package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/livenex/internal/auth"
	"github.com/hitoshi/livenex/internal/live"
	"github.com/hitoshi/livenex/internal/metrics"
	"github.com/hitoshi/livenex/internal/middleware"
	"github.com/hitoshi/livenex/internal/model"
	"github.com/hitoshi/livenex/internal/oauth"
	"github.com/hitoshi/livenex/internal/session"
	"github.com/hitoshi/livenex/internal/storage"
	"github.com/hitoshi/livenex/internal/user"
	"github.com/hitoshi/livenex/internal/youtube"
)

const (
	testSessionSecret = "handler-test-secret-0123456789abcdef"
	testStateSecret   = "handler-test-state-secret-0123456789"
	testCSRFToken     = "csrf-test-token"
	csrfCookie        = "livenex_csrf"
	csrfHeader        = "X-CSRF-Token"
)

// --- モック定義 ---

type mockUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func (m *mockUserStore) FindByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id], nil
}

type mockAuthService struct {
	signupFn     func(ctx context.Context, in auth.SignupInput) (*model.User, error)
	signinFn     func(ctx context.Context, email, password string) (*model.User, error)
	adminLoginFn func(ctx context.Context, email, password string) (*model.User, error)
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput) (*model.User, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in)
	}
	return nil, nil
}

func (m *mockAuthService) Signin(ctx context.Context, email, password string) (*model.User, error) {
	if m.signinFn != nil {
		return m.signinFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) AdminLogin(ctx context.Context, email, password string) (*model.User, error) {
	if m.adminLoginFn != nil {
		return m.adminLoginFn(ctx, email, password)
	}
	return nil, nil
}

type mockProfileReader struct {
	identities []*model.Identity
	err        error
}

func (m *mockProfileReader) Profile(_ context.Context, u *model.User) (*user.Profile, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &user.Profile{User: u, Identities: m.identities}, nil
}

type linkCall struct {
	userID string
	ext    *oauth.ExternalIdentity
}

type mockLinker struct {
	mu     sync.Mutex
	calls  []linkCall
	linkFn func(ctx context.Context, userID string, ext *oauth.ExternalIdentity) (*model.User, error)
}

func (m *mockLinker) Link(ctx context.Context, userID string, ext *oauth.ExternalIdentity) (*model.User, error) {
	m.mu.Lock()
	m.calls = append(m.calls, linkCall{userID: userID, ext: ext})
	m.mu.Unlock()
	if m.linkFn != nil {
		return m.linkFn(ctx, userID, ext)
	}
	return &model.User{ID: "user-new", Role: model.RoleStandard}, nil
}

func (m *mockLinker) Calls() []linkCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]linkCall(nil), m.calls...)
}

// fakeAdapter はIdPとの通信を行わず、codeからidentityを組み立てる。
type fakeAdapter struct {
	provider    model.Provider
	exchangeErr error
}

func (a *fakeAdapter) Provider() model.Provider { return a.provider }

func (a *fakeAdapter) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?" + url.Values{"state": {state}}.Encode()
}

func (a *fakeAdapter) Exchange(_ context.Context, code string) (*oauth.ExternalIdentity, error) {
	if a.exchangeErr != nil {
		return nil, a.exchangeErr
	}
	return &oauth.ExternalIdentity{
		Provider:       a.provider,
		ProviderUserID: "ext-" + code,
		DisplayName:    "External " + code,
		AccessToken:    "access-" + code,
		RefreshToken:   "refresh-" + code,
	}, nil
}

type mockPaymentService struct {
	createOrderFn func(ctx context.Context, userID string) (*model.Payment, error)
	confirmFn     func(ctx context.Context, userID, orderID, paymentID, signature string) (*model.Payment, error)
}

func (m *mockPaymentService) CreateOrder(ctx context.Context, userID string) (*model.Payment, error) {
	if m.createOrderFn != nil {
		return m.createOrderFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockPaymentService) Confirm(ctx context.Context, userID, orderID, paymentID, signature string) (*model.Payment, error) {
	if m.confirmFn != nil {
		return m.confirmFn(ctx, userID, orderID, paymentID, signature)
	}
	return nil, nil
}

type mockEntitlements struct {
	active *model.Payment
	err    error
}

func (m *mockEntitlements) IsEntitled(_ context.Context, _ string) (bool, error) {
	return m.active != nil, m.err
}

func (m *mockEntitlements) Active(_ context.Context, _ string) (*model.Payment, error) {
	return m.active, m.err
}

type mockTicketService struct {
	createFn     func(ctx context.Context, userID, subject, body string) (*model.Ticket, error)
	listByUserFn func(ctx context.Context, userID string) ([]*model.Ticket, error)
	getFn        func(ctx context.Context, viewer *model.User, ticketID string) (*model.Ticket, error)
	listAllFn    func(ctx context.Context) ([]*model.Ticket, error)
	replyFn      func(ctx context.Context, ticketID, reply string) (*model.Ticket, error)
}

func (m *mockTicketService) Create(ctx context.Context, userID, subject, body string) (*model.Ticket, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, subject, body)
	}
	return nil, nil
}

func (m *mockTicketService) ListByUser(ctx context.Context, userID string) ([]*model.Ticket, error) {
	if m.listByUserFn != nil {
		return m.listByUserFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockTicketService) Get(ctx context.Context, viewer *model.User, ticketID string) (*model.Ticket, error) {
	if m.getFn != nil {
		return m.getFn(ctx, viewer, ticketID)
	}
	return nil, nil
}

func (m *mockTicketService) ListAll(ctx context.Context) ([]*model.Ticket, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockTicketService) Reply(ctx context.Context, ticketID, reply string) (*model.Ticket, error) {
	if m.replyFn != nil {
		return m.replyFn(ctx, ticketID, reply)
	}
	return nil, nil
}

type mockUserService struct {
	listFn   func(ctx context.Context) ([]*model.User, error)
	deleteFn func(ctx context.Context, actor *model.User, userID string) error
}

func (m *mockUserService) List(ctx context.Context) ([]*model.User, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

func (m *mockUserService) Delete(ctx context.Context, actor *model.User, userID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, actor, userID)
	}
	return nil
}

type mockLiveService struct {
	setFn  func(ctx context.Context, userID string, in live.Input) (*model.LiveStream, error)
	pastFn func(ctx context.Context, userID string) ([]*model.LiveStream, error)
}

func (m *mockLiveService) Set(ctx context.Context, userID string, in live.Input) (*model.LiveStream, error) {
	if m.setFn != nil {
		return m.setFn(ctx, userID, in)
	}
	return nil, nil
}

func (m *mockLiveService) Past(ctx context.Context, userID string) ([]*model.LiveStream, error) {
	if m.pastFn != nil {
		return m.pastFn(ctx, userID)
	}
	return nil, nil
}

type mockYouTubeService struct {
	upcomingFn func(ctx context.Context, userID string) ([]model.UpcomingLive, error)
	updateFn   func(ctx context.Context, userID string, u youtube.ScheduleUpdate) error
	replyFn    func(ctx context.Context, userID, parentID, text string) (string, error)
}

func (m *mockYouTubeService) UpcomingLives(ctx context.Context, userID string) ([]model.UpcomingLive, error) {
	if m.upcomingFn != nil {
		return m.upcomingFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockYouTubeService) UpdateSchedule(ctx context.Context, userID string, u youtube.ScheduleUpdate) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, u)
	}
	return nil
}

func (m *mockYouTubeService) ReplyToComment(ctx context.Context, userID, parentID, text string) (string, error) {
	if m.replyFn != nil {
		return m.replyFn(ctx, userID, parentID, text)
	}
	return "", nil
}

type mockUploader struct {
	maxBytes int64
	got      storage.UploadInput
	body     []byte
	err      error
}

func (m *mockUploader) Upload(_ context.Context, in storage.UploadInput) (*storage.Object, error) {
	m.got = in
	m.body, _ = io.ReadAll(in.Body)
	if m.err != nil {
		return nil, m.err
	}
	return &storage.Object{Key: "videos/" + in.UserID + "/x.mp4", URL: "https://cdn.example.com/x.mp4", Size: in.Size, ContentType: in.ContentType}, nil
}

func (m *mockUploader) MaxBytes() int64 { return m.maxBytes }

type mockPinger struct{ err error }

func (m mockPinger) PingContext(context.Context) error { return m.err }

type recordingCollector struct {
	metrics.Nop
	mu           sync.Mutex
	logins       []string
	oauthFailure []string
}

func (c *recordingCollector) RecordLogin(method string, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.logins = append(c.logins, method+":"+outcome)
}

func (c *recordingCollector) RecordOAuthFailure(provider, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.oauthFailure = append(c.oauthFailure, provider+":"+reason)
}

type mockRevoker struct {
	*session.Codec
	revoked []string
	err     error
}

func (m *mockRevoker) Revoke(_ context.Context, claims *session.Claims) error {
	m.revoked = append(m.revoked, claims.ID)
	return m.err
}

// --- テスト環境 ---

type testEnv struct {
	router       http.Handler
	codec        *session.Codec
	sessions     *mockRevoker
	users        *mockUserStore
	collector    *recordingCollector
	authService  *mockAuthService
	profiles     *mockProfileReader
	linker       *mockLinker
	adapters     map[model.Provider]*fakeAdapter
	payments     *mockPaymentService
	entitlements *mockEntitlements
	tickets      *mockTicketService
	userService  *mockUserService
	lives        *mockLiveService
	youtube      *mockYouTubeService
	uploader     *mockUploader
	pinger       *mockPinger
}

type envOption func(*envConfig)

type envConfig struct {
	frontendURL string
	providers   []model.Provider
}

func withFrontend(u string) envOption {
	return func(c *envConfig) { c.frontendURL = u }
}

func withProviders(ps ...model.Provider) envOption {
	return func(c *envConfig) { c.providers = ps }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	cfg := envConfig{providers: model.Providers()}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	codec := session.NewCodec(testSessionSecret, time.Hour)
	env := &testEnv{
		codec:    codec,
		sessions: &mockRevoker{Codec: codec},
		users: &mockUserStore{users: map[string]*model.User{
			"user-42": {ID: "user-42", Email: "streamer@example.com", Name: "Streamer", Role: model.RoleStandard},
			"admin-1": {ID: "admin-1", Email: "admin@example.com", Name: "Admin", Role: model.RoleAdmin},
		}},
		collector:    &recordingCollector{},
		authService:  &mockAuthService{},
		profiles:     &mockProfileReader{},
		linker:       &mockLinker{},
		adapters:     map[model.Provider]*fakeAdapter{},
		payments:     &mockPaymentService{},
		entitlements: &mockEntitlements{},
		tickets:      &mockTicketService{},
		userService:  &mockUserService{},
		lives:        &mockLiveService{},
		youtube:      &mockYouTubeService{},
		uploader:     &mockUploader{maxBytes: 1 << 20},
		pinger:       &mockPinger{},
	}

	var adapters []oauth.Adapter
	for _, p := range cfg.providers {
		a := &fakeAdapter{provider: p}
		env.adapters[p] = a
		adapters = append(adapters, a)
	}
	flow := oauth.NewFlow(oauth.FlowConfig{StateSecret: []byte(testStateSecret)}, adapters...)

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	cookies := session.CookieConfig{}
	env.router = NewRouter(&RouterDeps{
		Gate:          middleware.NewGate(codec, env.users, env.collector, logger),
		Entitlements:  env.entitlements,
		RateLimiter:   limiter,
		Logger:        logger,
		Collector:     env.collector,
		HealthChecker: env.pinger,
		Auth:          NewAuthHandler(env.authService, env.sessions, env.profiles, cookies, env.collector),
		OAuth: NewOAuthHandler(flow, env.linker, env.sessions, env.collector, OAuthHandlerConfig{
			FrontendURL: cfg.frontendURL,
			Cookies:     cookies,
		}),
		Payment: NewPaymentHandler(env.payments, env.entitlements, "rzp_test_key"),
		Ticket:  NewTicketHandler(env.tickets),
		Admin:   NewAdminHandler(env.userService, env.tickets),
		Live:    NewLiveHandler(env.lives),
		YouTube: NewYouTubeHandler(env.youtube),
		Upload:  NewUploadHandler(env.uploader),
	})
	return env
}

// do はリクエストをルーターに渡してレスポンスを返す。
func (e *testEnv) do(req *http.Request) *http.Response {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w.Result()
}

// login は指定ユーザーのセッションCookieをリクエストに付与する。
func (e *testEnv) login(t *testing.T, req *http.Request, userID string) *http.Request {
	t.Helper()
	u, _ := e.users.FindByID(context.Background(), userID)
	role := model.RoleStandard
	if u != nil {
		role = u.Role
	}
	token, err := e.codec.Issue(userID, role)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token.Value})
	return req
}

// withCSRF はダブルサブミット用のCookieとヘッダーを付与する。
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: csrfCookie, Value: testCSRFToken})
	req.Header.Set(csrfHeader, testCSRFToken)
	return req
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	return withCSRF(req)
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	decodeBody(t, resp, &body)
	return body.Code
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}
