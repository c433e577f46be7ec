package main

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/tweetor-social/tweetor/feed"
	"github.com/tweetor-social/tweetor/identity"
	"github.com/tweetor-social/tweetor/models"

	"github.com/labstack/echo/v4"
)

type GenericError struct {
	Error      string   `json:"error"`
	Message    string   `json:"message"`
	Categories []string `json:"categories,omitempty"`
}

// Maps store errors onto HTTP status codes. Unclassified errors are logged
// and reported without detail.
func (srv *Server) writeError(c echo.Context, err error) error {
	var se *models.SubmissionError
	if errors.As(err, &se) {
		return c.JSON(statusFor(err), GenericError{
			Error:      string(se.Kind),
			Message:    se.Error(),
			Categories: se.Categories,
		})
	}

	status := statusFor(err)
	switch status {
	case http.StatusBadRequest:
		return c.JSON(status, GenericError{Error: "BadRequest", Message: err.Error()})
	case http.StatusUnauthorized:
		return c.JSON(status, GenericError{Error: "Unauthorized", Message: err.Error()})
	case http.StatusForbidden:
		return c.JSON(status, GenericError{Error: "Forbidden", Message: err.Error()})
	case http.StatusNotFound:
		return c.JSON(status, GenericError{Error: "NotFound", Message: err.Error()})
	case http.StatusUnprocessableEntity:
		return c.JSON(status, GenericError{Error: "Rejected", Message: err.Error()})
	default:
		srv.logger.Error("internal error handling request", "path", c.Path(), "err", err)
		return c.JSON(http.StatusInternalServerError, GenericError{
			Error:   "InternalServerError",
			Message: "internal server error",
		})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotAuthenticated),
		errors.Is(err, identity.ErrBadCredentials),
		models.KindOf(err) == models.KindUnauthenticated:
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, models.ErrModerationRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, GenericError{Error: "BadRequest", Message: msg})
}

func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil
}

func pageFrom(c echo.Context) feed.Page {
	return feed.ParsePage(c.QueryParam("skip"), c.QueryParam("limit"))
}

type postView struct {
	models.Post
	// set for reposts whose original still exists
	Original *models.Post `json:"original,omitempty"`
	// repost whose original has been deleted
	OriginalUnavailable bool `json:"original_unavailable,omitempty"`
}

// GET /api/captcha
func (srv *Server) HandleIssueCaptcha(c echo.Context) error {
	tok, err := srv.captchas.Issue(c.Request().Context())
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"captcha": tok})
}

type signupRequest struct {
	DisplayName          string `json:"display_name" form:"display_name"`
	Password             string `json:"password" form:"password"`
	PasswordConfirmation string `json:"password_confirmation" form:"password_confirmation"`
	// the issued token, and what the user typed
	Captcha      string `json:"captcha" form:"captcha"`
	CaptchaInput string `json:"captcha_input" form:"captcha_input"`
}

// POST /api/signup
func (srv *Server) HandleSignup(c echo.Context) error {
	ctx := c.Request().Context()
	var req signupRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ok, err := srv.captchas.Redeem(ctx, req.CaptchaInput, req.Captcha)
	if err != nil {
		return srv.writeError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusBadRequest, GenericError{Error: "CaptchaMismatch", Message: "captcha answer was incorrect"})
	}

	user, err := srv.users.CreateUser(ctx, identity.SignupInput{
		DisplayName:          req.DisplayName,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	})
	if err != nil {
		return srv.writeError(c, err)
	}
	signups.Inc()
	if err := srv.setSessionHandle(c, user.Handle); err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, user)
}

type loginRequest struct {
	Handle   string `json:"handle" form:"handle"`
	Password string `json:"password" form:"password"`
}

// POST /api/login
func (srv *Server) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	user, err := srv.users.Authenticate(c.Request().Context(), req.Handle, req.Password)
	if err != nil {
		return srv.writeError(c, err)
	}
	if err := srv.setSessionHandle(c, user.Handle); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// POST /api/logout
func (srv *Server) HandleLogout(c echo.Context) error {
	if err := srv.setSessionHandle(c, ""); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, GenericStatus{Daemon: "tweetor", Status: "ok"})
}

type passwordRequest struct {
	Current string `json:"current_password" form:"current_password"`
	New     string `json:"new_password" form:"new_password"`
}

// POST /api/password
func (srv *Server) HandleChangePassword(c echo.Context) error {
	var req passwordRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := srv.users.ChangePassword(c.Request().Context(), actorFrom(c), req.Current, req.New); err != nil {
		return srv.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GET /api/feed?skip=&limit=
func (srv *Server) HandleListFeed(c echo.Context) error {
	posts, err := srv.posts.ListFeed(c.Request().Context(), actorFrom(c).Staff, pageFrom(c))
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": posts})
}

// GET /api/hashtags/:tag
func (srv *Server) HandleListHashtag(c echo.Context) error {
	posts, err := srv.posts.ListByHashtag(c.Request().Context(), c.Param("tag"), actorFrom(c).Staff, pageFrom(c))
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": posts})
}

// GET /api/posts/:id
func (srv *Server) HandleGetPost(c echo.Context) error {
	ctx := c.Request().Context()
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "post id is invalid")
	}
	staff := actorFrom(c).Staff
	post, err := srv.posts.GetForViewer(ctx, id, staff)
	if err != nil {
		return srv.writeError(c, err)
	}

	view := postView{Post: *post}
	if post.IsRepost() {
		orig, found, err := srv.posts.ResolveOriginal(ctx, post)
		if err != nil {
			return srv.writeError(c, err)
		}
		switch {
		case !found:
			view.OriginalUnavailable = true
		case staff || orig.Visibility == models.VisibilityVisible:
			view.Original = orig
		}
	}
	return c.JSON(http.StatusOK, view)
}

type submitPostRequest struct {
	Content   string `json:"content" form:"content"`
	MediaLink string `json:"media_link" form:"media_link"`
	Hashtag   string `json:"hashtag" form:"hashtag"`
}

// POST /api/posts
func (srv *Server) HandleSubmitPost(c echo.Context) error {
	var req submitPostRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	id, err := srv.posts.SubmitOriginal(c.Request().Context(), actorFrom(c), feed.OriginalInput{
		Content:   req.Content,
		MediaLink: req.MediaLink,
		Hashtag:   req.Hashtag,
	})
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]uint64{"id": id})
}

// POST /api/posts/:id/repost
func (srv *Server) HandleRepost(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "post id is invalid")
	}
	newID, err := srv.posts.SubmitRepost(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]uint64{"id": newID})
}

type reportRequest struct {
	Reason string `json:"reason" form:"reason"`
}

// POST /api/posts/:id/report
func (srv *Server) HandleReport(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "post id is invalid")
	}
	var req reportRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	repID, err := srv.reports.Report(c.Request().Context(), actorFrom(c), id, req.Reason)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]uint64{"id": repID})
}

type userView struct {
	*models.User
	Profile     *feed.Profile `json:"profile"`
	IsFollowing bool          `json:"is_following"`
}

// GET /api/users/:handle
func (srv *Server) HandleGetUser(c echo.Context) error {
	ctx := c.Request().Context()
	user, err := srv.users.LookupHandle(ctx, c.Param("handle"))
	if err != nil {
		return srv.writeError(c, err)
	}
	prof, err := srv.posts.AuthorProfile(ctx, user.Handle)
	if err != nil {
		return srv.writeError(c, err)
	}
	view := userView{User: user, Profile: prof}
	if actor := actorFrom(c); actor.Authenticated {
		view.IsFollowing, err = srv.graph.IsFollowing(ctx, actor.Handle, user.Handle)
		if err != nil {
			return srv.writeError(c, err)
		}
	}
	return c.JSON(http.StatusOK, view)
}

// GET /api/users/:handle/posts
func (srv *Server) HandleListUserPosts(c echo.Context) error {
	posts, err := srv.posts.ListByAuthor(c.Request().Context(), c.Param("handle"), actorFrom(c).Staff, pageFrom(c))
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": posts})
}

// GET /api/users/:handle/followers
func (srv *Server) HandleListFollowers(c echo.Context) error {
	handles, err := srv.graph.ListFollowers(c.Request().Context(), c.Param("handle"))
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"handles": handles})
}

// GET /api/users/:handle/following
func (srv *Server) HandleListFollowing(c echo.Context) error {
	handles, err := srv.graph.ListFollowing(c.Request().Context(), c.Param("handle"))
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"handles": handles})
}

// POST /api/follows/:handle
func (srv *Server) HandleFollow(c echo.Context) error {
	if err := srv.graph.Follow(c.Request().Context(), actorFrom(c), c.Param("handle")); err != nil {
		return srv.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DELETE /api/follows/:handle
func (srv *Server) HandleUnfollow(c echo.Context) error {
	if err := srv.graph.Unfollow(c.Request().Context(), actorFrom(c), c.Param("handle")); err != nil {
		return srv.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GET /api/dm
func (srv *Server) HandleListPeers(c echo.Context) error {
	actor := actorFrom(c)
	if err := actor.RequireAuthenticated(); err != nil {
		return srv.writeError(c, err)
	}
	peers, err := srv.messages.ListEngagedPeers(c.Request().Context(), actor.Handle)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"handles": peers})
}

// GET /api/dm/:handle
func (srv *Server) HandleListConversation(c echo.Context) error {
	actor := actorFrom(c)
	if err := actor.RequireAuthenticated(); err != nil {
		return srv.writeError(c, err)
	}
	msgs, err := srv.messages.ListConversation(c.Request().Context(), actor.Handle, c.Param("handle"))
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"messages": msgs})
}

type submitMessageRequest struct {
	Content string `json:"content" form:"content"`
}

// POST /api/dm/:handle
func (srv *Server) HandleSubmitMessage(c echo.Context) error {
	var req submitMessageRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	id, err := srv.messages.Submit(c.Request().Context(), actorFrom(c), c.Param("handle"), req.Content)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]uint64{"id": id})
}

// GET /api/staff/hidden
func (srv *Server) HandleListHidden(c echo.Context) error {
	ctx := c.Request().Context()
	actor := actorFrom(c)
	posts, err := srv.posts.ListHidden(ctx, actor)
	if err != nil {
		return srv.writeError(c, err)
	}
	msgs, err := srv.messages.ListHidden(ctx, actor)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"posts": posts, "messages": msgs})
}

// GET /api/staff/reports
func (srv *Server) HandleListReports(c echo.Context) error {
	reps, err := srv.reports.List(c.Request().Context(), actorFrom(c))
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"reports": reps})
}

// GET /api/staff/reports/:id
func (srv *Server) HandleListPostReports(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "post id is invalid")
	}
	reps, err := srv.reports.ListForPost(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"reports": reps})
}

// DELETE /api/staff/posts/:id
func (srv *Server) HandleDeletePost(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "post id is invalid")
	}
	if err := srv.posts.DeletePost(c.Request().Context(), actorFrom(c), id); err != nil {
		return srv.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type visibilityRequest struct {
	Visibility models.Visibility `json:"visibility" form:"visibility"`
}

// POST /api/staff/posts/:id/visibility
func (srv *Server) HandleSetVisibility(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return badRequest(c, "post id is invalid")
	}
	var req visibilityRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := srv.posts.SetVisibility(c.Request().Context(), actorFrom(c), id, req.Visibility); err != nil {
		return srv.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// GET /api/staff/mutes
func (srv *Server) HandleListMutes(c echo.Context) error {
	mutes, err := srv.graph.ListMuted(c.Request().Context(), actorFrom(c))
	if err != nil {
		return srv.writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"mutes": mutes})
}

// POST /api/staff/mutes/:handle
func (srv *Server) HandleMute(c echo.Context) error {
	if err := srv.graph.Mute(c.Request().Context(), actorFrom(c), c.Param("handle")); err != nil {
		return srv.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DELETE /api/staff/mutes/:handle
func (srv *Server) HandleUnmute(c echo.Context) error {
	if err := srv.graph.Unmute(c.Request().Context(), actorFrom(c), c.Param("handle")); err != nil {
		return srv.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DELETE /api/staff/users/:handle
func (srv *Server) HandleDeleteUser(c echo.Context) error {
	if err := srv.users.DeleteUser(c.Request().Context(), actorFrom(c), c.Param("handle")); err != nil {
		return srv.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
