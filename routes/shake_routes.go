package routes

import (
	"github.com/gorilla/mux"

	"blindshake_server/controllers"
)

// RegisterShakeRoutes sets up routes for entering and leaving the pool under /api/shake
func RegisterShakeRoutes(r *mux.Router, shake controllers.Shaker, auth mux.MiddlewareFunc) {
	controller := controllers.NewShakeController(shake)

	shakeRouter := r.PathPrefix("/api/shake").Subrouter()
	shakeRouter.Use(auth)

	shakeRouter.HandleFunc("/start", controller.StartSeeking).Methods("POST")
	shakeRouter.HandleFunc("/stop", controller.StopSeeking).Methods("POST")
}
