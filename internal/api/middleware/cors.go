// cors.go — CORS middleware для браузерного front-end каталога.
package middleware

import (
	"net/http"
	"slices"

	"github.com/go-chi/cors"
)

// CORS возвращает middleware с разрешёнными origin из конфигурации.
// "*" разрешает любой origin; credentials при этом не передаются.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := slices.Contains(allowedOrigins, "*")

	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-Id"},
		AllowCredentials: !allowAll,
		MaxAge:           300,
	})
}
