// Package webcast exposes the simulator's HTTP surface: a JPEG preview of
// the live frame, runtime statistics and Prometheus metrics.
package webcast

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/camloop/camsim/broadcast"
	"github.com/camloop/camsim/metric"
)

func Run(ctx context.Context, port string, slot *broadcast.Slot, stats *metric.Stats, gatherer prometheus.Gatherer) error {
	gin.SetMode(gin.ReleaseMode)
	gin.DefaultWriter = io.Discard
	router, err := graceful.Default(graceful.WithAddr(port))
	if err != nil {
		return err
	}
	router.Use(CrossOrigin())
	register(router, slot, stats, gatherer)

	return router.RunWithContext(ctx)
}

func register(router gin.IRouter, slot *broadcast.Slot, stats *metric.Stats, gatherer prometheus.Gatherer) {
	router.GET("/preview/latest", func(c *gin.Context) {
		f, ok := slot.Latest()
		if !ok {
			c.AbortWithStatus(http.StatusNotFound)
			return
		}
		jpeg, err := encodeJPEG(f)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Data(http.StatusOK, "image/jpeg", jpeg)
	})

	router.GET("/api/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Snapshot())
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// CrossOrigin Access-Control-Allow-Origin any methods
func CrossOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
