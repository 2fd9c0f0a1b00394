package routes

import (
	"github.com/gorilla/mux"

	"blindshake_server/controllers"
	"blindshake_server/middleware"
)

// RegisterAdminRoutes sets up operator routes under /api/admin
func RegisterAdminRoutes(r *mux.Router, sweeper controllers.SweepRunner, operatorKey string) {
	controller := controllers.NewAdminController(sweeper)

	adminRouter := r.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(middleware.RequireOperator(operatorKey))

	adminRouter.HandleFunc("/sweeps/{kind}", controller.RunSweep).Methods("POST")
}
