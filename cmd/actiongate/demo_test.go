package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/actiongate/internal/adapters/identity/bearer"
	"github.com/tjfontaine/actiongate/pkg/actiongate"
)

const demoSecret = "demo-test-secret"

func startDemo(t *testing.T) http.Handler {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "server:\n  port: 0\nauth:\n  jwt_secret: " + demoSecret + "\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	gw, err := actiongate.New(
		actiongate.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		actiongate.WithFileConfig(path),
		actiongate.WithControllers(demoControllers()),
	)
	require.NoError(t, err)
	require.NoError(t, gw.Start(context.Background()))
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw.Handler()
}

func demoToken(t *testing.T, id string) string {
	t.Helper()
	v, err := bearer.NewVerifier(demoSecret, "")
	require.NoError(t, err)
	tok, err := v.Issue(bearer.Identity{ID: id, RoleList: []string{"member"}}, time.Hour)
	require.NoError(t, err)
	return tok
}

type demoClient struct {
	t       *testing.T
	h       http.Handler
	cookies []*http.Cookie
	token   string
}

func (c *demoClient) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	if got := rec.Result().Cookies(); len(got) > 0 {
		c.cookies = got
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestDemo_AnonymousIsSentToLogin(t *testing.T) {
	c := &demoClient{t: t, h: startDemo(t)}

	rec := c.do(http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/session/login", rec.Header().Get("Location"))
	require.NotEmpty(t, c.cookies)

	rec = c.do(http.MethodGet, "/session/login", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "NotAuthenticated", body["authError"])
	assert.Contains(t, body["authRequestedUrl"], "/account")
}

func TestDemo_SignedInAccount(t *testing.T) {
	c := &demoClient{t: t, h: startDemo(t), token: demoToken(t, "u-1")}

	rec := c.do(http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "u-1", body["id"])
	assert.Equal(t, []any{"member"}, body["roles"])

	rec = c.do(http.MethodGet, "/session/login", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/account", rec.Header().Get("Location"))
}

func TestDemo_Update(t *testing.T) {
	c := &demoClient{t: t, h: startDemo(t), token: demoToken(t, "u-2")}

	rec := c.do(http.MethodPost, "/account/update", url.Values{"name": {"ann"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ann", decode(t, rec)["name"])

	rec = c.do(http.MethodPost, "/account/update", url.Values{"name": {"ann"}, "age": {"17"}})
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/account", rec.Header().Get("Location"))

	rec = c.do(http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rejected, ok := decode(t, rec)["rejected"].(map[string]any)
	require.True(t, ok, "rejected input should be flashed")
	assert.Equal(t, "age", rejected["field"])
	assert.Equal(t, "min", rejected["reason"])

	rec = c.do(http.MethodGet, "/account", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, decode(t, rec), "rejected", "flash survives one read only")

	rec = c.do(http.MethodGet, "/account/update", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDemo_LegacyReboots(t *testing.T) {
	c := &demoClient{t: t, h: startDemo(t), token: demoToken(t, "u-3")}

	rec := c.do(http.MethodGet, "/account/legacy", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u-3", decode(t, rec)["id"])
}
