package api

import (
	"path/filepath"

	"github.com/gin-gonic/gin"

	"whatsapp-bot/internal/logging"
	"whatsapp-bot/internal/ws"
)

// CORS lets the status pages be hosted elsewhere.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// NewRouter wires the gateway routes. hub may be nil when no live feed is wanted.
func NewRouter(gateway *GatewayHandler, hub *ws.Hub) *gin.Engine {
	r := gin.New()
	r.Use(logging.GinLogger(), gin.Recovery(), CORS())

	// Pages
	r.GET("/", gateway.page("index.html"))
	r.GET("/qr", gateway.page("qr.html"))
	r.GET("/pair", gateway.page("pair.html"))
	r.StaticFile("/style.css", filepath.Join(gateway.PublicDir, "style.css"))
	r.StaticFile("/script.js", filepath.Join(gateway.PublicDir, "script.js"))

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/status", gateway.GetStatus)
		apiGroup.GET("/qr.png", gateway.GetQRImage)
		apiGroup.POST("/pair", gateway.RequestPairing)
	}

	if hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			hub.ServeWs(c.Writer, c.Request)
		})
	}
	return r
}
