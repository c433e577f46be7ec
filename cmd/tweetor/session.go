package main

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/tweetor-social/tweetor/identity"
	"github.com/tweetor-social/tweetor/models"

	"github.com/RussellLuo/slidingwindow"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/labstack/echo/v4"
)

const (
	sessionName = "tweetor"
	actorKey    = "actor"
)

// Resolves the session cookie to an Actor for every request. Staff status is
// read fresh from the store, and a session naming a deleted account is
// treated as logged out.
func (srv *Server) loadActor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := models.Anonymous()
		sess, _ := srv.cookies.Get(c.Request(), sessionName)
		if handle, ok := sess.Values["handle"].(string); ok && handle != "" {
			a, err := srv.users.ActorFor(c.Request().Context(), handle)
			switch {
			case err == nil:
				actor = a
				actor.Staff = actor.Staff || srv.staffHandles[actor.Handle]
			case errors.Is(err, identity.ErrHandleNotFound):
			default:
				return err
			}
		}
		c.Set(actorKey, actor)
		return next(c)
	}
}

func actorFrom(c echo.Context) models.Actor {
	if a, ok := c.Get(actorKey).(models.Actor); ok {
		return a
	}
	return models.Anonymous()
}

func (srv *Server) setSessionHandle(c echo.Context, handle string) error {
	sess, _ := srv.cookies.Get(c.Request(), sessionName)
	if handle == "" {
		delete(sess.Values, "handle")
		sess.Options.MaxAge = -1
	} else {
		sess.Values["handle"] = handle
	}
	return sess.Save(c.Request(), c.Response())
}

func windowFunc() (slidingwindow.Window, slidingwindow.StopFunc) {
	return slidingwindow.NewLocalWindow()
}

// Per-identity sliding-window limits on submissions. Idle limiters are
// evicted after twice the window size.
type submitLimiter struct {
	mu       sync.Mutex
	limit    int64
	size     time.Duration
	limiters *expirable.LRU[string, *slidingwindow.Limiter]
}

func newSubmitLimiter(limit int64, size time.Duration) *submitLimiter {
	return &submitLimiter{
		limit:    limit,
		size:     size,
		limiters: expirable.NewLRU[string, *slidingwindow.Limiter](100_000, nil, 2*size),
	}
}

func (l *submitLimiter) Allow(key string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(key)
	if !ok {
		lim, _ = slidingwindow.NewLimiter(l.size, l.limit, windowFunc)
		l.limiters.Add(key, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

// Middleware bounding post and message submissions per account, or per client
// IP for anonymous callers.
func (srv *Server) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		key := "ip:" + c.RealIP()
		if actor := actorFrom(c); actor.Authenticated {
			key = "handle:" + actor.Handle
		}
		if !srv.limiter.Allow(key) {
			submitRateLimited.Inc()
			return c.JSON(http.StatusTooManyRequests, GenericError{
				Error:   "RateLimitExceeded",
				Message: "too many submissions, try again in a minute",
			})
		}
		return next(c)
	}
}
