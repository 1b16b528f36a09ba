package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tasksync/backend"
	"tasksync/internal/utils"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Server exposes an Authority over the push/pull HTTP contract
type Server struct {
	authority *Authority
	token     string
	engine    *gin.Engine
	server    *http.Server
}

// NewServer creates a server. An empty token disables bearer authentication.
func NewServer(addr, token string, authority *Authority) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		authority: authority,
		token:     token,
		engine:    gin.New(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())
	s.registerRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens in the background. Listen errors other than a clean shutdown are logged.
func (s *Server) Start() {
	go func() {
		utils.Infof("Sync server listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Errorf("Sync server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	utils.Infof("Shutting down sync server")
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.health)

	sync := s.engine.Group("/sync")
	sync.Use(s.authMiddleware())
	{
		sync.POST("/push", s.push)
		sync.POST("/pull", s.pull)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// push handles POST /sync/push
func (s *Server) push(c *gin.Context) {
	var req backend.PushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid push body: " + err.Error(),
		})
		return
	}

	if err := validatePush(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid_entity",
			Message: err.Error(),
		})
		return
	}

	userID := c.GetString(userIDKey)
	resp := s.authority.Push(userID, req)
	utils.Debugf("push from %s: %d pushed, %d conflicts", userID, resp.Pushed, resp.Conflicts)
	c.JSON(http.StatusOK, resp)
}

// pull handles POST /sync/pull
func (s *Server) pull(c *gin.Context) {
	var req backend.PullRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid pull body: " + err.Error(),
		})
		return
	}

	userID := c.GetString(userIDKey)
	resp := s.authority.Pull(userID, req)
	utils.Debugf("pull from %s: %d tasks, %d domains", userID, len(resp.Tasks), len(resp.Domains))
	c.JSON(http.StatusOK, resp)
}

const userIDKey = "userID"

// authMiddleware checks the bearer token and requires a user identifier
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token != "" {
			auth := c.GetHeader("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.token {
				c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
					Error:   "unauthorized",
					Message: "Missing or invalid bearer token",
				})
				return
			}
		}

		userID := strings.TrimSpace(c.GetHeader(backend.UserIDHeader))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
				Error:   "missing_user",
				Message: fmt.Sprintf("The %s header is required", backend.UserIDHeader),
			})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		utils.Debugf("HTTP %s %s %d (%dms)",
			c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Milliseconds())
	}
}

func validatePush(req *backend.PushRequest) error {
	for i := range req.Domains {
		if err := req.Domains[i].Validate(); err != nil {
			return err
		}
	}
	for i := range req.Tasks {
		if err := req.Tasks[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
