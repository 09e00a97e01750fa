package receiver

import (
	"context"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lora-sensor-node/internal/payload"
	"lora-sensor-node/internal/transport"
)

// Server exposes a Service over HTTP.
type Server struct {
	svc    *Service
	addr   string
	router *gin.Engine
}

// NewServer builds the router. Metrics are served from g.
func NewServer(svc *Service, addr string, g prometheus.Gatherer) *Server {
	s := &Server{svc: svc, addr: addr, router: gin.Default()}
	s.setupRoutes(g)
	return s
}

func (s *Server) setupRoutes(g prometheus.Gatherer) {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	if g != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1")
	{
		api.GET("/ports", s.handlePorts)
		api.POST("/uplinks", s.handleUplink)
		api.POST("/decode", s.handleDecode)
		api.GET("/readings/latest", s.handleLatest)
		api.GET("/devices/:id/history", s.handleHistory)
	}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

type portInfo struct {
	Port   uint8    `json:"f_port"`
	Fields []string `json:"fields"`
	Length int      `json:"length"`
}

func (s *Server) handlePorts(c *gin.Context) {
	ports := s.svc.Catalog().Ports()
	out := make([]portInfo, 0, len(ports))
	for _, p := range ports {
		names := make([]string, 0, p.Fields.Len())
		for _, k := range p.Fields.Kinds() {
			names = append(names, k.String())
		}
		out = append(out, portInfo{Port: p.Number, Fields: names, Length: p.EncodedLength()})
	}
	c.JSON(http.StatusOK, gin.H{"ports": out, "count": len(out)})
}

func (s *Server) handleUplink(c *gin.Context) {
	var req transport.UplinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	res, err := s.svc.Ingest(ctx, Uplink{
		DeviceID: req.DeviceID,
		Port:     req.FPort,
		Payload:  req.FRMPayload,
		RSSI:     req.RSSI,
		SNR:      req.SNR,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	if res.Duplicate {
		c.JSON(http.StatusOK, res)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// DecodeRequest carries a frame either as base64 (frm_payload) or as hex.
type DecodeRequest struct {
	FPort      uint8  `json:"f_port"`
	FRMPayload []byte `json:"frm_payload"`
	PayloadHex string `json:"payload_hex"`
}

func (s *Server) handleDecode(c *gin.Context) {
	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	frame := req.FRMPayload
	if req.PayloadHex != "" {
		b, err := hex.DecodeString(req.PayloadHex)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload_hex is not valid hex"})
			return
		}
		frame = b
	}
	p, snap, err := s.svc.Decode(req.FPort, frame)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"f_port": p.Number, "fields": snap.Map(p.Fields)})
}

func (s *Server) handleLatest(c *gin.Context) {
	store := s.svc.DB()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
		return
	}
	rows, err := store.LatestReadings(c.Request.Context(), c.Query("device_id"))
	if err != nil {
		log.Printf("latest readings: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load readings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"readings": rows, "count": len(rows)})
}

func (s *Server) handleHistory(c *gin.Context) {
	store := s.svc.DB()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no database configured"})
		return
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	rows, err := store.DeviceHistory(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		log.Printf("device history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"device_id": c.Param("id"), "readings": rows, "count": len(rows)})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, payload.ErrUnknownPort), errors.Is(err, ErrFrameLength):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Start serves HTTP until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("receiver listening on %s", s.addr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}
