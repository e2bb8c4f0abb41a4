package frontdoor

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tjfontaine/actiongate/internal/action"
	"github.com/tjfontaine/actiongate/internal/adapters/identity/bearer"
	"github.com/tjfontaine/actiongate/internal/adapters/session/memory"
	"github.com/tjfontaine/actiongate/internal/attribute"
	"github.com/tjfontaine/actiongate/internal/controller"
	"github.com/tjfontaine/actiongate/internal/core/domain"
	"github.com/tjfontaine/actiongate/internal/dispatch"
	"github.com/tjfontaine/actiongate/internal/server"
)

type fixture struct {
	router   *chi.Mux
	sessions *memory.Backend
	verifier *bearer.Verifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	reg := controller.NewRegistry()
	reg.MustRegister(controller.Definition{
		Name: "account",
		Actions: []controller.Action{
			{Name: "index", Handler: func(ctx context.Context, ac *action.Context) (domain.Signal, error) {
				ac.Response().Set("page", "index")
				return domain.Continue(), nil
			}},
			{Name: "show", Handler: func(ctx context.Context, ac *action.Context) (domain.Signal, error) {
				ac.Response().Set("request_id", ac.GetString(VarRequestID))
				ac.Response().Set("remote_addr", ac.GetString("remote_addr"))
				ac.Response().SetHeader("X-Account", "shown")
				return domain.Continue(), nil
			}},
			{
				Name: "save",
				Handler: func(ctx context.Context, ac *action.Context) (domain.Signal, error) {
					ac.Response().Status = http.StatusCreated
					ac.Response().Set("age", ac.Form()["age"])
					return domain.Continue(), nil
				},
				Attributes: []attribute.Attribute{
					attribute.POST(),
					attribute.MustCheck(attribute.CheckConfig{
						Target:   attribute.CheckPost,
						Fields:   map[string]string{"age": "int; min: 18"},
						Redirect: attribute.RedirectTarget{URL: "/account/edit"},
					}),
				},
			},
			{
				Name: "secret",
				Handler: func(ctx context.Context, ac *action.Context) (domain.Signal, error) {
					id := attribute.AsIdentity(ac.Vars()[VarUser])
					ac.Response().Set("user", id.IdentityID())
					return domain.Continue(), nil
				},
				Attributes: []attribute.Attribute{&attribute.Auth{State: attribute.AuthRequired, Roles: []string{"admin"}}},
			},
			{Name: "quiet", Handler: func(ctx context.Context, ac *action.Context) (domain.Signal, error) {
				return domain.Stop(), nil
			}},
			{
				Name: "avatar",
				Handler: func(ctx context.Context, ac *action.Context) (domain.Signal, error) {
					ac.Response().Set("file", ac.Files()["avatar"])
					return domain.Continue(), nil
				},
				Attributes: []attribute.Attribute{attribute.MustCheck(attribute.CheckConfig{
					Target: attribute.CheckFiles,
					Fields: map[string]string{"avatar": "binary; mime: image/"},
				})},
			},
			{
				Name: "import",
				Handler: func(ctx context.Context, ac *action.Context) (domain.Signal, error) {
					payload, _ := ac.Payload()
					ac.Response().Set("payload", payload)
					return domain.Continue(), nil
				},
				Attributes: []attribute.Attribute{attribute.MustCheck(attribute.CheckConfig{
					Target:   attribute.CheckPayload,
					Contract: `{"type":"assoc","keys":{"count":"int; min: 1"}}`,
				})},
			},
			{Name: "visit", Handler: func(ctx context.Context, ac *action.Context) (domain.Signal, error) {
				n, _, _ := ac.Session().Get(ctx, "visits")
				count, _ := n.(int)
				count++
				if err := ac.Session().Set(ctx, "visits", count); err != nil {
					return domain.Continue(), err
				}
				ac.Response().Set("visits", count)
				return domain.Continue(), nil
			}},
		},
	})

	verifier, err := bearer.NewVerifier("test-secret", "")
	if err != nil {
		t.Fatal(err)
	}
	sessions := memory.New(time.Hour, 0)

	srv := server.New(server.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	New(Options{
		Dispatcher:   dispatch.New(reg, dispatch.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))),
		Sessions:     sessions,
		Verifier:     verifier,
		MaxBodyBytes: 1 << 10,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).Mount(srv.Router)

	return &fixture{router: srv.Router, sessions: sessions, verifier: verifier}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorType(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error %q: %v", rec.Body.String(), err)
	}
	return body.Error.Type
}

func TestHandler_Render(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("GET", "/account/show", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	rec := f.do(req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	if body["request_id"] != rec.Header().Get(server.RequestIDHeader) || body["request_id"] == "" {
		t.Errorf("request_id = %v", body["request_id"])
	}
	if body["remote_addr"] != "192.0.2.7" {
		t.Errorf("remote_addr = %v", body["remote_addr"])
	}
	if rec.Header().Get("X-Account") != "shown" || rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("headers = %v", rec.Header())
	}
}

func TestHandler_DefaultAction(t *testing.T) {
	rec := newFixture(t).do(httptest.NewRequest("GET", "/account", nil))
	if rec.Code != http.StatusOK || decode(t, rec)["page"] != "index" {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest("POST", path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestHandler_FormCheck(t *testing.T) {
	f := newFixture(t)

	rec := f.do(postForm("/account/save", url.Values{"age": {"30"}}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if age := decode(t, rec)["age"]; age != float64(30) {
		t.Errorf("age = %#v, want coerced number", age)
	}

	rec = f.do(postForm("/account/save", url.Values{"age": {"12"}}))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/account/edit" {
		t.Fatalf("status = %d location = %q", rec.Code, rec.Header().Get("Location"))
	}

	cookie := rec.Result().Cookies()[0]
	s, _ := f.sessions.Open(context.Background(), cookie.Value)
	flash, ok, _ := s.Get(context.Background(), "form")
	if !ok {
		t.Fatal("rejected input not flashed to the session")
	}
	if fm := flash.(map[string]any); fm["field"] != "age" || fm["reason"] != domain.ReasonMin {
		t.Errorf("flash = %#v", fm)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	rec := newFixture(t).do(httptest.NewRequest("GET", "/account/save", nil))
	if rec.Code != http.StatusMethodNotAllowed || errorType(t, rec) != string(domain.ErrUnauthorizedMethod) {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestHandler_Auth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/account/secret", nil))
	if rec.Code != http.StatusUnauthorized || errorType(t, rec) != string(domain.ErrNotAuthenticated) {
		t.Fatalf("anonymous: status = %d body = %s", rec.Code, rec.Body)
	}

	token, _ := f.verifier.Issue(bearer.Identity{ID: "u1", RoleList: []string{"admin"}}, time.Hour)
	req := httptest.NewRequest("GET", "/account/secret", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	if rec.Code != http.StatusOK || decode(t, rec)["user"] != "u1" {
		t.Fatalf("admin: status = %d body = %s", rec.Code, rec.Body)
	}

	token, _ = f.verifier.Issue(bearer.Identity{ID: "u2", RoleList: []string{"viewer"}}, time.Hour)
	req = httptest.NewRequest("GET", "/account/secret", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = f.do(req)
	if rec.Code != http.StatusForbidden || errorType(t, rec) != string(domain.ErrNoMatchingRole) {
		t.Errorf("viewer: status = %d body = %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest("GET", "/account/secret", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = f.do(req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d", rec.Code)
	}
}

func TestHandler_StopIsNoContent(t *testing.T) {
	rec := newFixture(t).do(httptest.NewRequest("GET", "/account/quiet", nil))
	if rec.Code != http.StatusNoContent || rec.Body.Len() != 0 {
		t.Errorf("status = %d body = %q", rec.Code, rec.Body)
	}
}

func TestHandler_UnknownRoute(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		path string
		want domain.DispatchErrorKind
	}{
		{"/ghost/index", domain.ErrUnknownController},
		{"/account/ghost", domain.ErrUnknownAction},
	}
	for _, tt := range tests {
		rec := f.do(httptest.NewRequest("GET", tt.path, nil))
		if rec.Code != http.StatusNotFound || errorType(t, rec) != string(tt.want) {
			t.Errorf("%s: status = %d body = %s", tt.path, rec.Code, rec.Body)
		}
	}
}

func TestHandler_SessionCookie(t *testing.T) {
	f := newFixture(t)

	rec := f.do(httptest.NewRequest("GET", "/account/visit", nil))
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != DefaultCookieName || !cookies[0].HttpOnly {
		t.Fatalf("cookies = %v", cookies)
	}

	req := httptest.NewRequest("GET", "/account/visit", nil)
	req.AddCookie(cookies[0])
	rec = f.do(req)
	if got := decode(t, rec)["visits"]; got != float64(2) {
		t.Errorf("visits = %v, want 2", got)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("existing session should not be reissued")
	}

	req = httptest.NewRequest("GET", "/account/visit", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "not-a-uuid"})
	rec = f.do(req)
	if len(rec.Result().Cookies()) != 1 {
		t.Error("malformed session id should be replaced")
	}
}

func TestHandler_MultipartFiles(t *testing.T) {
	f := newFixture(t)

	upload := func(contentType string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="avatar"; filename="me.png"`)
		h.Set("Content-Type", contentType)
		part, _ := mw.CreatePart(h)
		io.WriteString(part, "png-bytes")
		mw.Close()

		req := httptest.NewRequest("POST", "/account/avatar", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return f.do(req)
	}

	rec := upload("image/png")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	file := decode(t, rec)["file"].(map[string]any)
	if file["name"] != "me.png" || file["mime"] != "image/png" || file["size"] != float64(9) {
		t.Errorf("file = %v", file)
	}

	rec = upload("application/pdf")
	if rec.Code != http.StatusBadRequest || errorType(t, rec) != "validation" {
		t.Errorf("pdf: status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestHandler_Payload(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest("POST", "/account/import", strings.NewReader(`{"count":"3"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := f.do(req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if p := decode(t, rec)["payload"].(map[string]any); p["count"] != float64(3) {
		t.Errorf("payload = %v", p)
	}

	req = httptest.NewRequest("POST", "/account/import", strings.NewReader(`{"count":0}`))
	rec = f.do(req)
	var body ErrorBody
	json.Unmarshal(rec.Body.Bytes(), &body)
	if rec.Code != http.StatusBadRequest || body.Error.Field != "count" || body.Error.Reason != domain.ReasonMin {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestHandler_BodyTooLarge(t *testing.T) {
	req := httptest.NewRequest("POST", "/account/import", strings.NewReader(strings.Repeat("x", 4096)))
	rec := newFixture(t).do(req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d body = %s", rec.Code, rec.Body)
	}
}

func TestSink_Redirect(t *testing.T) {
	s := &sink{}
	for _, target := range []string{"/login", "https://example.com/x", "?next=1"} {
		if err := s.Redirect(context.Background(), target); err != nil {
			t.Errorf("Redirect(%q) error = %v", target, err)
		}
	}
	for _, target := range []string{"javascript:alert(1)", "http://[::1"} {
		if err := s.Redirect(context.Background(), target); err == nil {
			t.Errorf("Redirect(%q) accepted", target)
		}
	}
}

func TestErrorDetail_HidesInternals(t *testing.T) {
	d := errorDetail(io.ErrUnexpectedEOF)
	if d.Type != "internal" || strings.Contains(d.Message, "EOF") {
		t.Errorf("detail = %+v", d)
	}
}
