package main

import (
	"callbridge/internal/httpapi"
	"callbridge/internal/signaling"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, ws *signaling.WSHandler) {
	// public
	r.GET("/healthz", h.Healthz)
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	// protected API group
	api := r.Group("/api")
	api.Use(authMW)
	{
		api.GET("/users", h.ListUsers)
		api.POST("/call/:callee_id", h.InitiateCall)
		api.GET("/call-status/:session_id", h.CallStatus)
		api.POST("/answer-call/:session_id", h.AnswerCall)
		api.POST("/reject-call/:session_id", h.RejectCall)
	}

	// The upgrade request authenticates via ?token= because browsers cannot
	// set headers on WebSocket handshakes.
	wsGroup := r.Group("/ws")
	wsGroup.Use(authMW)
	wsGroup.GET("", ws.Handle)
}
