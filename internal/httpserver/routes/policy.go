package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/tabreaper/tabreaper/internal/httpserver/deps"
	"github.com/tabreaper/tabreaper/internal/httpserver/handlers"
)

func init() { Register(registerPolicy) }

func registerPolicy(r chi.Router, d deps.Deps) {
	r.Get("/api/policy", handlers.GetPolicy(d))
	r.Patch("/api/policy", handlers.PatchPolicy(d))
}
