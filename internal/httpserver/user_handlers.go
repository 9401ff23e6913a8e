package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"chatserver/internal/service"
)

func handleListUsers(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := userSvc.ListAll(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get users"})
			return
		}
		writeJSON(w, http.StatusOK, users)
	}
}

func handleGetAdmin(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		admin, err := userSvc.GetAdmin(r.Context())
		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": "admin not found"})
			return
		}
		writeJSON(w, http.StatusOK, admin)
	}
}

func handleGetUser(userSvc *service.UserService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "userID")
		user, err := userSvc.GetByID(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get user"})
			return
		}
		if user == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}
