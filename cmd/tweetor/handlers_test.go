package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/tweetor-social/tweetor/internal/testutil"
	"github.com/tweetor-social/tweetor/moderation"
	"github.com/tweetor-social/tweetor/moderation/keyword"
	"github.com/tweetor-social/tweetor/setstore"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testServer(t *testing.T) *Server {
	sets := setstore.NewMemSetStore()
	sets.Add("drug", "drug", "cocaine")
	sets.Add("weapon", "gun")
	pipeline := moderation.NewPipeline(keyword.NewClassifier(sets), moderation.Config{})

	srv, err := NewServer(testutil.TestDB(t), pipeline, ServerConfig{
		SessionSecret:   "test-secret-test-secret-test-sec",
		StaffHandles:    []string{"admin"},
		SubmitRateLimit: 4,
	})
	require.NoError(t, err)
	srv.users.BcryptCost = bcrypt.MinCost
	return srv
}

// drives the server like a browser, carrying the session cookie
type testClient struct {
	t       *testing.T
	srv     *Server
	cookies []*http.Cookie
}

func (tc *testClient) do(method, path string, body any) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(tc.t, err)
		req = httptest.NewRequest(method, path, strings.NewReader(string(raw)))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, c := range tc.cookies {
		req.AddCookie(c)
	}
	recorder := httptest.NewRecorder()
	tc.srv.ServeHTTP(recorder, req)
	if set := recorder.Result().Cookies(); len(set) > 0 {
		tc.cookies = set
	}
	return recorder
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func (tc *testClient) signup(name, password string) string {
	rec := tc.do(http.MethodGet, "/api/captcha", nil)
	require.Equal(tc.t, http.StatusOK, rec.Code)
	var issued map[string]string
	decode(tc.t, rec, &issued)

	rec = tc.do(http.MethodPost, "/api/signup", map[string]string{
		"display_name":          name,
		"password":              password,
		"password_confirmation": password,
		"captcha":               issued["captcha"],
		"captcha_input":         issued["captcha"],
	})
	require.Equal(tc.t, http.StatusCreated, rec.Code, rec.Body.String())
	var user map[string]any
	decode(tc.t, rec, &user)
	return user["Handle"].(string)
}

func TestHealth(t *testing.T) {
	tc := &testClient{t: t, srv: testServer(t)}
	rec := tc.do(http.MethodGet, "/_health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var status GenericStatus
	decode(t, rec, &status)
	assert.Equal(t, "ok", status.Status)
}

func TestSignupCaptcha(t *testing.T) {
	assert := assert.New(t)
	tc := &testClient{t: t, srv: testServer(t)}

	rec := tc.do(http.MethodGet, "/api/captcha", nil)
	var issued map[string]string
	decode(t, rec, &issued)

	body := map[string]string{
		"display_name":          "Alice",
		"password":              "pw",
		"password_confirmation": "pw",
		"captcha":               issued["captcha"],
		"captcha_input":         "nope!",
	}
	rec = tc.do(http.MethodPost, "/api/signup", body)
	assert.Equal(http.StatusBadRequest, rec.Code)
	var gerr GenericError
	decode(t, rec, &gerr)
	assert.Equal("CaptchaMismatch", gerr.Error)

	// the token was burned by the failed attempt
	body["captcha_input"] = issued["captcha"]
	rec = tc.do(http.MethodPost, "/api/signup", body)
	assert.Equal(http.StatusBadRequest, rec.Code)

	assert.Equal("Alice", tc.signup("Alice", "pw"))
	other := &testClient{t: t, srv: tc.srv}
	assert.Equal("Alice1", other.signup("Alice", "pw2"))
}

func TestPostFlow(t *testing.T) {
	assert := assert.New(t)
	tc := &testClient{t: t, srv: testServer(t)}
	tc.signup("bob", "secret")

	rec := tc.do(http.MethodPost, "/api/posts", map[string]string{"content": "hello world", "hashtag": "intro"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created map[string]uint64
	decode(t, rec, &created)

	rec = tc.do(http.MethodPost, "/api/posts", map[string]string{"content": "selling cocaine"})
	assert.Equal(http.StatusUnprocessableEntity, rec.Code)
	var gerr GenericError
	decode(t, rec, &gerr)
	assert.Equal("Rejected", gerr.Error)
	assert.Equal([]string{"drug"}, gerr.Categories)

	rec = tc.do(http.MethodPost, "/api/posts", map[string]string{"content": "gif", "media_link": "https://giphy.com/a.gif"})
	assert.Equal(http.StatusBadRequest, rec.Code)
	decode(t, rec, &gerr)
	assert.Equal("BadMediaHost", gerr.Error)

	// malformed pagination falls back to defaults
	rec = tc.do(http.MethodGet, "/api/feed?skip=abc&limit=-3", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Posts []map[string]any `json:"posts"`
	}
	decode(t, rec, &listing)
	require.Len(t, listing.Posts, 1)
	assert.Equal("hello world", listing.Posts[0]["Content"])

	rec = tc.do(http.MethodGet, "/api/posts/nope", nil)
	assert.Equal(http.StatusBadRequest, rec.Code)
	rec = tc.do(http.MethodGet, "/api/posts/999", nil)
	assert.Equal(http.StatusNotFound, rec.Code)

	anon := &testClient{t: t, srv: tc.srv}
	rec = anon.do(http.MethodPost, "/api/posts", map[string]string{"content": "hi"})
	assert.Equal(http.StatusUnauthorized, rec.Code)
	decode(t, rec, &gerr)
	assert.Equal("Unauthenticated", gerr.Error)
}

func TestRepostView(t *testing.T) {
	assert := assert.New(t)
	tc := &testClient{t: t, srv: testServer(t)}
	tc.signup("carol", "secret")
	staff := &testClient{t: t, srv: tc.srv}
	staff.signup("admin", "secret")

	rec := tc.do(http.MethodPost, "/api/posts", map[string]string{"content": "original"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var orig map[string]uint64
	decode(t, rec, &orig)

	rec = tc.do(http.MethodPost, "/api/posts/"+itoa(orig["id"])+"/repost", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var repost map[string]uint64
	decode(t, rec, &repost)

	rec = tc.do(http.MethodGet, "/api/posts/"+itoa(repost["id"]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]any
	decode(t, rec, &view)
	require.NotNil(t, view["original"])
	assert.Equal("original", view["original"].(map[string]any)["Content"])

	rec = staff.do(http.MethodDelete, "/api/staff/posts/"+itoa(orig["id"]), nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = tc.do(http.MethodGet, "/api/posts/"+itoa(repost["id"]), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = map[string]any{}
	decode(t, rec, &view)
	assert.Nil(view["original"])
	assert.Equal(true, view["original_unavailable"])
}

func TestStaffEndpoints(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t)
	user := &testClient{t: t, srv: srv}
	user.signup("dave", "secret")
	staff := &testClient{t: t, srv: srv}
	staff.signup("admin", "secret")
	anon := &testClient{t: t, srv: srv}

	assert.Equal(http.StatusUnauthorized, anon.do(http.MethodGet, "/api/staff/reports", nil).Code)
	assert.Equal(http.StatusForbidden, user.do(http.MethodGet, "/api/staff/reports", nil).Code)
	assert.Equal(http.StatusOK, staff.do(http.MethodGet, "/api/staff/reports", nil).Code)

	// muted users can not post, but can still message
	require.Equal(t, http.StatusNoContent, staff.do(http.MethodPost, "/api/staff/mutes/dave", nil).Code)
	rec := user.do(http.MethodPost, "/api/posts", map[string]string{"content": "let me speak"})
	assert.Equal(http.StatusForbidden, rec.Code)
	var gerr GenericError
	decode(t, rec, &gerr)
	assert.Equal("Muted", gerr.Error)
	rec = user.do(http.MethodPost, "/api/dm/admin", map[string]string{"content": "please unmute"})
	assert.Equal(http.StatusCreated, rec.Code)

	require.Equal(t, http.StatusNoContent, staff.do(http.MethodDelete, "/api/staff/mutes/dave", nil).Code)
	rec = user.do(http.MethodPost, "/api/posts", map[string]string{"content": "thanks"})
	assert.Equal(http.StatusCreated, rec.Code)
}

func TestDirectMessageHidden(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t)
	alice := &testClient{t: t, srv: srv}
	alice.signup("alice", "secret")
	bob := &testClient{t: t, srv: srv}
	bob.signup("bob", "secret")
	staff := &testClient{t: t, srv: srv}
	staff.signup("admin", "secret")

	require.Equal(t, http.StatusCreated, alice.do(http.MethodPost, "/api/dm/bob", map[string]string{"content": "hi bob"}).Code)
	require.Equal(t, http.StatusCreated, alice.do(http.MethodPost, "/api/dm/bob", map[string]string{"content": "want a gun"}).Code)
	assert.Equal(http.StatusNotFound, alice.do(http.MethodPost, "/api/dm/nobody", map[string]string{"content": "hi"}).Code)

	var convo struct {
		Messages []map[string]any `json:"messages"`
	}
	decode(t, bob.do(http.MethodGet, "/api/dm/alice", nil), &convo)
	require.Len(t, convo.Messages, 1)
	assert.Equal("hi bob", convo.Messages[0]["Content"])

	var peers map[string][]string
	decode(t, bob.do(http.MethodGet, "/api/dm", nil), &peers)
	assert.Equal([]string{"alice"}, peers["handles"])

	var hidden struct {
		Messages []map[string]any `json:"messages"`
	}
	decode(t, staff.do(http.MethodGet, "/api/staff/hidden", nil), &hidden)
	require.Len(t, hidden.Messages, 1)
	assert.Equal("want a gun", hidden.Messages[0]["Content"])
}

func TestSubmitRateLimit(t *testing.T) {
	tc := &testClient{t: t, srv: testServer(t)}
	tc.signup("erin", "secret")

	for i := 0; i < 4; i++ {
		rec := tc.do(http.MethodPost, "/api/posts", map[string]string{"content": "post"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := tc.do(http.MethodPost, "/api/posts", map[string]string{"content": "one too many"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// reads are not limited
	assert.Equal(t, http.StatusOK, tc.do(http.MethodGet, "/api/feed", nil).Code)
}

func TestLoginLogout(t *testing.T) {
	assert := assert.New(t)
	srv := testServer(t)
	tc := &testClient{t: t, srv: srv}
	tc.signup("frank", "secret")

	assert.Equal(http.StatusOK, tc.do(http.MethodPost, "/api/logout", nil).Code)
	rec := tc.do(http.MethodPost, "/api/posts", map[string]string{"content": "hi"})
	assert.Equal(http.StatusUnauthorized, rec.Code)

	rec = tc.do(http.MethodPost, "/api/login", map[string]string{"handle": "frank", "password": "wrong"})
	assert.Equal(http.StatusUnauthorized, rec.Code)
	rec = tc.do(http.MethodPost, "/api/login", map[string]string{"handle": "frank", "password": "secret"})
	assert.Equal(http.StatusOK, rec.Code)

	rec = tc.do(http.MethodPost, "/api/password", map[string]string{"current_password": "secret", "new_password": "better"})
	assert.Equal(http.StatusNoContent, rec.Code)
	rec = tc.do(http.MethodPost, "/api/login", map[string]string{"handle": "frank", "password": "better"})
	assert.Equal(http.StatusOK, rec.Code)

	var user map[string]any
	decode(t, tc.do(http.MethodGet, "/api/users/frank", nil), &user)
	assert.Equal("frank", user["Handle"])
	assert.NotContains(user, "PasswordHash")
}

func itoa(v uint64) string {
	return strconv.FormatUint(v, 10)
}
