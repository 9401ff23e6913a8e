package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"chatserver/internal/domain"
	"chatserver/internal/service"
)

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Gender   string `json:"gender"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// tokenResponse is the shape the web client stores after signup/login.
type tokenResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	UserID  string `json:"userId"`
	Role    string `json:"role"`
	Name    string `json:"name"`
}

func handleSignup(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		resp, err := authSvc.Signup(r.Context(), service.SignupInput{
			Name:     req.Name,
			Email:    req.Email,
			Password: req.Password,
			Gender:   req.Gender,
		})
		if err != nil {
			writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
			return
		}

		writeJSON(w, http.StatusCreated, tokenResponse{
			Message: "User created",
			Token:   resp.AccessToken,
			UserID:  resp.User.ID,
			Role:    resp.User.Role,
			Name:    resp.User.Name,
		})
	}
}

func handleLogin(authSvc *service.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}

		resp, err := authSvc.Login(r.Context(), service.LoginInput{
			Email:    req.Email,
			Password: req.Password,
		})
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid email or password"})
			return
		}

		writeJSON(w, http.StatusOK, tokenResponse{
			Message: "Login successful",
			Token:   resp.AccessToken,
			UserID:  resp.User.ID,
			Role:    resp.User.Role,
			Name:    resp.User.Name,
		})
	}
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrResolution):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
