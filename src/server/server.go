// Package server exposes the translator over a local HTTP API with a
// websocket event stream.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"screen-translate/src/chat"
	"screen-translate/src/eventloop"
	"screen-translate/src/region"
	"screen-translate/src/translate"
	"screen-translate/src/worker"
)

type Server struct {
	loop   *eventloop.Loop
	hub    *Hub
	engine *gin.Engine
}

type rectRequest struct {
	Left   *int `json:"left" binding:"required"`
	Top    *int `json:"top" binding:"required"`
	Right  *int `json:"right" binding:"required"`
	Bottom *int `json:"bottom" binding:"required"`
}

type regionView struct {
	Label string `json:"label"`
	region.Region
}

type scanRequest struct {
	Full bool `json:"full"`
}

type translateRequest struct {
	Text      string `json:"text" binding:"required"`
	Direction string `json:"direction"`
}

type providerRequest struct {
	Provider string `json:"provider" binding:"required"`
}

type chatRequest struct {
	Text string `json:"text" binding:"required"`
}

func New(loop *eventloop.Loop) *Server {
	s := &Server{loop: loop, hub: NewHub(), engine: gin.New()}
	s.engine.Use(gin.Recovery(), sameOriginJSON())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)
	r.GET("/regions", s.listRegions)
	r.PUT("/regions/main", s.selectMain)
	r.POST("/regions/extra", s.addExtra)
	r.POST("/scan", s.scan)
	r.POST("/translate", s.translate)
	r.PUT("/provider", s.setProvider)
	r.POST("/provider/probe", s.probe)
	r.POST("/chat", s.sendChat)
	r.GET("/chat/history", s.chatHistory)
	r.GET("/events", s.events)
}

func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub and pumps loop events into it until ctx is done.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case env := <-s.loop.Events():
				s.hub.Broadcast(env)
			}
		}
	}()
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.Start(ctx)
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"clients":  s.hub.ClientCount(),
		"provider": s.loop.Provider(),
		"chat":     s.loop.ChatState().String(),
	})
}

func (s *Server) listRegions(c *gin.Context) {
	regions := s.loop.Regions().Regions()
	views := make([]regionView, len(regions))
	for i, r := range regions {
		views[i] = regionView{Label: region.Label(i), Region: r}
	}
	c.JSON(http.StatusOK, gin.H{"regions": views})
}

func (s *Server) selectMain(c *gin.Context) {
	var req rectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	r, err := s.loop.SelectMain(*req.Left, *req.Top, *req.Right, *req.Bottom)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": r, "count": s.loop.Regions().Len()})
}

func (s *Server) addExtra(c *gin.Context) {
	var req rectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	r, added, err := s.loop.AddExtra(*req.Left, *req.Top, *req.Right, *req.Bottom)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"region": r, "added": added, "count": s.loop.Regions().Len()})
}

func (s *Server) scan(c *gin.Context) {
	var req scanRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, err)
			return
		}
	}
	h, err := s.loop.Scan(req.Full)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": h.ID()})
}

func (s *Server) translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	dir, err := translate.ParseDirection(req.Direction)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	h, err := s.loop.Translate(req.Text, dir)
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": h.ID()})
}

func (s *Server) setProvider(c *gin.Context) {
	var req providerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	p, err := translate.ParseProvider(req.Provider)
	if err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	s.loop.SetProvider(p)
	c.JSON(http.StatusOK, gin.H{"provider": p})
}

func (s *Server) probe(c *gin.Context) {
	h, err := s.loop.Probe()
	if err != nil {
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": h.ID(), "provider": s.loop.Provider()})
}

func (s *Server) sendChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.loop.SendChat(req.Text); err != nil {
		if errors.Is(err, chat.ErrBusy) {
			c.JSON(http.StatusConflict, gin.H{"error": "busy"})
			return
		}
		respondError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": s.loop.ChatState().String()})
}

func (s *Server) chatHistory(c *gin.Context) {
	turns := s.loop.ChatHistory()
	if turns == nil {
		turns = []chat.Turn{}
	}
	c.JSON(http.StatusOK, gin.H{"state": s.loop.ChatState().String(), "turns": turns})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: sameOrigin,
}

// sameOriginJSON stops web pages from driving the API through the user's
// browser. Requests carrying a foreign Origin are refused, and bodies on
// mutating routes must be JSON, which a page cannot send cross-origin
// without a preflight.
func sameOriginJSON() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sameOrigin(c.Request) {
			log.Printf("API: rejected %s %s from origin %q", c.Request.Method, c.Request.URL.Path, c.GetHeader("Origin"))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cross-origin request rejected"})
			return
		}
		if c.Request.Method != http.MethodGet && c.Request.ContentLength != 0 && c.ContentType() != gin.MIMEJSON {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{"error": "content type must be application/json"})
			return
		}
		c.Next()
	}
}

// sameOrigin accepts requests without an Origin header (non-browser clients)
// and those whose Origin host matches the Host they were sent to.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host != "" && strings.EqualFold(u.Host, r.Host)
}

func (s *Server) events(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Events: upgrade failed: %v", err)
		return
	}
	s.hub.Attach(conn)
}

func respondError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, region.ErrTooSmall), errors.Is(err, region.ErrInvalid),
		errors.Is(err, eventloop.ErrEmptyText), errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, region.ErrNotFound):
		return http.StatusConflict
	case errors.Is(err, worker.ErrQueueFull), errors.Is(err, worker.ErrClosed),
		errors.Is(err, eventloop.ErrChatDisabled), errors.Is(err, chat.ErrNotConfigured):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
