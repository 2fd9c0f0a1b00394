package routes

import (
	"github.com/gorilla/mux"

	"blindshake_server/controllers"
)

// RegisterRoutes sets up the unauthenticated routes
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", controllers.HealthCheckHandler).Methods("GET")
	r.HandleFunc("/", controllers.WelcomeHandler).Methods("GET")
}
