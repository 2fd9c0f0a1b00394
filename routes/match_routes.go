package routes

import (
	"github.com/gorilla/mux"

	"blindshake_server/controllers"
)

// RegisterMatchRoutes sets up routes for match operations under /api/matches
func RegisterMatchRoutes(r *mux.Router, lifecycle controllers.MatchLifecycle, auth mux.MiddlewareFunc) {
	controller := controllers.NewMatchController(lifecycle)

	matchRouter := r.PathPrefix("/api/matches/{matchId}").Subrouter()
	matchRouter.Use(auth)

	matchRouter.HandleFunc("", controller.GetMatch).Methods("GET")
	matchRouter.HandleFunc("/messages", controller.ListMessages).Methods("GET")
	matchRouter.HandleFunc("/messages", controller.SendMessage).Methods("POST")
	matchRouter.HandleFunc("/reveal", controller.RequestReveal).Methods("POST")
	matchRouter.HandleFunc("/decline", controller.DeclineReveal).Methods("POST")
	matchRouter.HandleFunc("/leave", controller.LeaveMatch).Methods("POST")
}
