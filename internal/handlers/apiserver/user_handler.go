package apiserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"connect-go/internal/middleware"
	"connect-go/internal/services"
	"connect-go/internal/storage"
)

// UserHandler 封装了用户资料相关的 HTTP 处理器方法。
type UserHandler struct {
	userService services.UserService
}

// NewUserHandler 创建一个新的 UserHandler 实例。
func NewUserHandler(userService services.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// GetMyProfile 处理 GET /api/v1/profile
func (h *UserHandler) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	profile, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "获取用户信息")
		return
	}
	writeJSONResponse(w, http.StatusOK, profile)
}

// UpdateMyProfile 处理 PATCH /api/v1/profile
func (h *UserHandler) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	profile, err := h.userService.UpdateProfile(r.Context(), userID, userID, req.toUpdate())
	if err != nil {
		writeServiceError(w, err, "更新用户信息")
		return
	}
	writeJSONResponse(w, http.StatusOK, profile)
}

// ChangePassword 处理 PATCH /api/v1/profile/password
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	if err := h.userService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, err, "修改密码")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "密码已更新"})
}

// GetUserProfile 处理 GET /api/v1/users/{userID}
func (h *UserHandler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	profile, err := h.userService.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "获取用户信息")
		return
	}
	writeJSONResponse(w, http.StatusOK, profile)
}

// currentUser 读取认证中间件写入的用户ID。
func currentUser(w http.ResponseWriter, r *http.Request) (uint, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeJSONError(w, "无法从上下文中获取用户ID", http.StatusUnauthorized)
	}
	return userID, ok
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (uint, bool) {
	id, err := storage.ParseID(mux.Vars(r)[name])
	if err != nil {
		writeJSONError(w, "无效的ID格式", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
