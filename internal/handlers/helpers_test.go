package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/launchkit/launchkit/internal/hash"
	"github.com/launchkit/launchkit/internal/mailer"
	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/rbac"
	"github.com/launchkit/launchkit/internal/session"
	"github.com/launchkit/launchkit/internal/testutil"
	"github.com/launchkit/launchkit/internal/token"
)

type captureMailer struct {
	mu   sync.Mutex
	msgs []mailer.Message
}

func (m *captureMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *captureMailer) sent() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mailer.Message(nil), m.msgs...)
}

type testEnv struct {
	DB       *gorm.DB
	Sessions *session.Manager
	Mail     *captureMailer
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	mail := &captureMailer{}
	return &testEnv{
		DB:       db,
		Sessions: session.NewManager(db, token.NewStore(db), mail, "http://localhost:8080"),
		Mail:     mail,
	}
}

func (env *testEnv) seedUser(t *testing.T, email string, role rbac.Role) models.User {
	t.Helper()
	passwordHash, err := hash.HashPassword("Secret123")
	require.NoError(t, err)
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Role:         string(role),
	}
	require.NoError(t, env.DB.Create(&user).Error)
	return user
}

// jsonRequest builds an echo context carrying a JSON body. The returned
// context is what handlers see after routing and the auth middleware ran.
func jsonRequest(method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

// actAs attaches the identity the route gate would have attached.
func actAs(c echo.Context, user models.User) {
	u := user
	c.Set("user", &u)
	c.Set("session", &models.Session{ID: uuid.NewString(), Token: "test-bearer", UserID: user.ID})
}

func httpStatus(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	require.ErrorAs(t, err, &he)
	return he.Code
}
