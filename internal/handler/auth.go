package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/templui/fintrack/internal/ctxkeys"
	"github.com/templui/fintrack/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if ctxkeys.User(r.Context()) != nil {
		http.Redirect(w, r, "/records", http.StatusSeeOther)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, "Log in by posting email and password to /login.")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := r.PostFormValue("email")
	password := r.PostFormValue("password")

	if email == "" || password == "" {
		writeErr(w, http.StatusUnprocessableEntity, "Please fill out all fields.")
		return
	}

	user, err := h.authService.Login(email, password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		writeErr(w, http.StatusUnauthorized, "Invalid email or password.")
		return
	}
	if err != nil {
		slog.Error("failed to log in", "error", err)
		writeErr(w, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	token, expiresAt, err := h.authService.GenerateJWT(user)
	if err != nil {
		slog.Error("failed to generate token", "error", err, "user_id", user.ID)
		writeErr(w, http.StatusInternalServerError, "Something went wrong.")
		return
	}

	h.authService.SetJWTCookie(w, token, expiresAt)
	http.Redirect(w, r, "/records", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authService.ClearJWTCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
