package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tweetor-social/tweetor/captcha"
	"github.com/tweetor-social/tweetor/directmsg"
	"github.com/tweetor-social/tweetor/feed"
	"github.com/tweetor-social/tweetor/graph"
	"github.com/tweetor-social/tweetor/identity"
	"github.com/tweetor-social/tweetor/moderation"
	"github.com/tweetor-social/tweetor/reports"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"gorm.io/gorm"
)

type ServerConfig struct {
	Logger             *slog.Logger
	BindAddr           string
	SessionSecret      string
	StaffHandles       []string
	MediaPrefixes      []string
	StoreOrphanReposts bool
	// per account, per minute
	SubmitRateLimit int64
	CaptchaTTL      time.Duration
	// HTTP request metrics are registered here when set
	Registerer prometheus.Registerer
}

type Server struct {
	echo   *echo.Echo
	httpd  *http.Server
	logger *slog.Logger

	users    *identity.Store
	posts    *feed.Store
	messages *directmsg.Store
	graph    *graph.Graph
	reports  *reports.Queue
	captchas *captcha.Store

	cookies *sessions.CookieStore
	limiter *submitLimiter

	// configured staff handles, honored even for accounts created after startup
	staffHandles map[string]bool
}

func newCaptchaStore(db *gorm.DB, ttl time.Duration, logger *slog.Logger) *captcha.Store {
	config := captcha.DefaultConfig()
	config.TTL = ttl
	return captcha.NewStore(db, config, logger)
}

func NewServer(db *gorm.DB, moderator moderation.Moderator, config ServerConfig) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.SessionSecret == "" {
		return nil, errors.New("session secret is required")
	}
	if config.SubmitRateLimit <= 0 {
		config.SubmitRateLimit = 4
	}

	feedConfig := feed.DefaultConfig()
	if len(config.MediaPrefixes) > 0 {
		feedConfig.AllowedMediaPrefixes = config.MediaPrefixes
	}
	feedConfig.StoreOrphanReposts = config.StoreOrphanReposts

	users := identity.NewStore(db, logger)
	if err := users.EnsureStaff(context.Background(), config.StaffHandles); err != nil {
		return nil, err
	}

	e := echo.New()
	srv := &Server{
		echo:     e,
		logger:   logger,
		users:    users,
		posts:    feed.NewStore(db, moderator, feedConfig, logger),
		messages: directmsg.NewStore(db, moderator, directmsg.DefaultConfig(), logger),
		graph:    graph.NewGraph(db, logger),
		reports:  reports.NewQueue(db, logger),
		captchas: newCaptchaStore(db, config.CaptchaTTL, logger),
		cookies:  sessions.NewCookieStore([]byte(config.SessionSecret)),
		limiter:  newSubmitLimiter(config.SubmitRateLimit, time.Minute),

		staffHandles: make(map[string]bool, len(config.StaffHandles)),
	}
	for _, h := range config.StaffHandles {
		srv.staffHandles[h] = true
	}
	srv.cookies.Options.HttpOnly = true
	srv.cookies.Options.SameSite = http.SameSiteLaxMode

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           config.BindAddr,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(otelecho.Middleware("tweetor"))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	if config.Registerer != nil {
		e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
			Subsystem:  "tweetor",
			Registerer: config.Registerer,
		}))
	}
	e.Use(srv.loadActor)
	e.HTTPErrorHandler = srv.errorHandler

	srv.registerRoutes()
	return srv, nil
}

func (srv *Server) registerRoutes() {
	e := srv.echo
	e.GET("/_health", srv.HandleHealthCheck)

	// accounts
	e.GET("/api/captcha", srv.HandleIssueCaptcha)
	e.POST("/api/signup", srv.HandleSignup)
	e.POST("/api/login", srv.HandleLogin)
	e.POST("/api/logout", srv.HandleLogout)
	e.POST("/api/password", srv.HandleChangePassword)

	// posts
	e.GET("/api/feed", srv.HandleListFeed)
	e.GET("/api/hashtags/:tag", srv.HandleListHashtag)
	e.GET("/api/posts/:id", srv.HandleGetPost)
	e.POST("/api/posts", srv.HandleSubmitPost, srv.rateLimit)
	e.POST("/api/posts/:id/repost", srv.HandleRepost, srv.rateLimit)
	e.POST("/api/posts/:id/report", srv.HandleReport)

	// users and follows
	e.GET("/api/users/:handle", srv.HandleGetUser)
	e.GET("/api/users/:handle/posts", srv.HandleListUserPosts)
	e.GET("/api/users/:handle/followers", srv.HandleListFollowers)
	e.GET("/api/users/:handle/following", srv.HandleListFollowing)
	e.POST("/api/follows/:handle", srv.HandleFollow)
	e.DELETE("/api/follows/:handle", srv.HandleUnfollow)

	// direct messages
	e.GET("/api/dm", srv.HandleListPeers)
	e.GET("/api/dm/:handle", srv.HandleListConversation)
	e.POST("/api/dm/:handle", srv.HandleSubmitMessage, srv.rateLimit)

	// staff
	staff := e.Group("/api/staff")
	staff.GET("/hidden", srv.HandleListHidden)
	staff.GET("/reports", srv.HandleListReports)
	staff.GET("/reports/:id", srv.HandleListPostReports)
	staff.DELETE("/posts/:id", srv.HandleDeletePost)
	staff.POST("/posts/:id/visibility", srv.HandleSetVisibility)
	staff.GET("/mutes", srv.HandleListMutes)
	staff.POST("/mutes/:handle", srv.HandleMute)
	staff.DELETE("/mutes/:handle", srv.HandleUnmute)
	staff.DELETE("/users/:handle", srv.HandleDeleteUser)
}

// Serves HTTP and prunes captchas until SIGINT or SIGTERM.
func (srv *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go srv.captchas.RunPruner(ctx, 5*time.Minute)

	srv.logger.Info("starting server", "bind", srv.httpd.Addr)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				srv.logger.Error("HTTP server shutting down unexpectedly", "err", err)
			}
		}
	}()

	// Wait for a signal to exit.
	srv.logger.Info("registering OS exit signal handler")
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	sig := <-exitSignals
	srv.logger.Info("received OS exit signal", "signal", sig)

	if err := srv.Shutdown(); err != nil {
		srv.logger.Error("HTTP server shutdown error", "err", err)
	}
	srv.logger.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) RunMetrics(listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, mux)
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (srv *Server) HandleHealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, GenericStatus{Status: "ok", Daemon: "tweetor"})
}

func (srv *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if jerr := c.JSON(he.Code, GenericError{
			Error:   http.StatusText(he.Code),
			Message: fmt.Sprintf("%v", he.Message),
		}); jerr != nil {
			srv.logger.Warn("failed writing error response", "err", jerr)
		}
		return
	}
	if jerr := srv.writeError(c, err); jerr != nil {
		srv.logger.Warn("failed writing error response", "err", jerr)
	}
}
