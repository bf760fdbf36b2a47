package controllers

import (
	"net/http"

	"github.com/angelmondragon/storefront-checkout/api/middleware"
	"github.com/angelmondragon/storefront-checkout/api/responses"
)

// Ping echoes whether the caller is a signed-in buyer or a guest.
func Ping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"status": "ok", "buyer": "guest"}
		if user := middleware.UserIDFromContext(r.Context()); user != "" {
			payload["buyer"] = user
		}
		responses.WriteSuccess(w, payload)
	}
}
