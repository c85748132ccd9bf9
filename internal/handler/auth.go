package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mpetrova/library-system/internal/model"
	"github.com/mpetrova/library-system/internal/repository"
	"github.com/mpetrova/library-system/internal/service"
	"github.com/mpetrova/library-system/internal/validation"
)

type registerRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	RealName string `json:"realName"`
	Email    string `json:"email"`
	UserType string `json:"userType"`
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Register регистрирует нового читателя и сразу аутентифицирует его.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "неверный формат запроса")
		return
	}

	if req.Login == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "логин и пароль обязательны")
		return
	}
	if req.Email != "" && !validation.IsValidEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "некорректный адрес электронной почты")
		return
	}

	userType := model.UserTypeStudent
	if req.UserType != "" {
		userType = model.UserType(req.UserType)
		if userType != model.UserTypeStudent && userType != model.UserTypeTeacher {
			writeError(w, http.StatusBadRequest, "недопустимый тип пользователя")
			return
		}
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, req.RealName, req.Email, userType)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			writeError(w, http.StatusConflict, "логин уже занят")
			return
		}
		h.respondError(w, err, "register user", zap.String("login", req.Login))
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	writeSuccess(w, "пользователь зарегистрирован", map[string]int64{"userId": userID})
}

// Login аутентифицирует пользователя по логину и паролю.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "неверный формат запроса")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "неверная пара логин/пароль")
			return
		}
		h.respondError(w, err, "login user", zap.String("login", req.Login))
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID)
	writeSuccess(w, "вход выполнен", map[string]any{
		"userId":   user.ID,
		"realName": user.RealName,
		"userType": user.Type,
	})
}
