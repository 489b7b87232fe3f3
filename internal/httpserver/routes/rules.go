package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabreaper/tabreaper/internal/httpserver/deps"
	"github.com/tabreaper/tabreaper/internal/httpserver/handlers"
)

func init() { Register(registerRules) }

func registerRules(r chi.Router, d deps.Deps) {
	r.Get("/api/rules", handlers.ListRules(d))
	r.Post("/api/rules", handlers.AddRule(d))
	r.Delete("/api/rules/{domain}", handlers.DeleteRule(d))
}
