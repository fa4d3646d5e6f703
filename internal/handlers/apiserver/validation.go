package apiserver

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"connect-go/internal/models"
	"connect-go/internal/services"
)

// validate is shared by every payload; custom rules are registered in init.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	_ = validate.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

type validatable interface {
	Validate() error
}

// validationDetails flattens validator errors into field -> failed rule.
func validationDetails(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		out[fe.Field()] = rule
	}
	return out
}

// RegisterRequest 是用户注册请求的结构体。
type RegisterRequest struct {
	FirstName string   `json:"firstName" validate:"required,notblank,max=100"`
	LastName  string   `json:"lastName" validate:"required,notblank,max=100"`
	Email     string   `json:"email" validate:"required,email,max=255"`
	Password  string   `json:"password" validate:"required,min=6,max=72"`
	Age       *int     `json:"age,omitempty" validate:"omitempty,gt=0,lt=150"`
	Gender    string   `json:"gender,omitempty" validate:"omitempty,oneof=Male Female Other"`
	PhotoURL  string   `json:"photoUrl,omitempty" validate:"omitempty,url,max=512"`
	About     string   `json:"about,omitempty" validate:"max=2000"`
	Skills    []string `json:"skills,omitempty" validate:"max=50,dive,max=50"`
}

func (r *RegisterRequest) Validate() error { return validate.Struct(r) }

func (r *RegisterRequest) toInput() services.RegisterInput {
	return services.RegisterInput{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Password:  r.Password,
		Age:       r.Age,
		Gender:    models.Gender(r.Gender),
		PhotoURL:  r.PhotoURL,
		About:     r.About,
		Skills:    r.Skills,
	}
}

// LoginRequest 是用户登录请求的结构体。
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (r *LoginRequest) Validate() error { return validate.Struct(r) }

// UpdateProfileRequest 中为 nil 的字段保持不变。
type UpdateProfileRequest struct {
	FirstName *string  `json:"firstName,omitempty" validate:"omitempty,notblank,max=100"`
	LastName  *string  `json:"lastName,omitempty" validate:"omitempty,notblank,max=100"`
	Email     *string  `json:"email,omitempty" validate:"omitempty,email,max=255"`
	Age       *int     `json:"age,omitempty" validate:"omitempty,gt=0,lt=150"`
	Gender    *string  `json:"gender,omitempty" validate:"omitempty,oneof=Male Female Other"`
	PhotoURL  *string  `json:"photoUrl,omitempty" validate:"omitempty,url,max=512"`
	About     *string  `json:"about,omitempty" validate:"omitempty,max=2000"`
	Skills    []string `json:"skills,omitempty" validate:"omitempty,max=50,dive,max=50"`
}

func (r *UpdateProfileRequest) Validate() error { return validate.Struct(r) }

func (r *UpdateProfileRequest) toUpdate() services.ProfileUpdate {
	u := services.ProfileUpdate{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Age:       r.Age,
		PhotoURL:  r.PhotoURL,
		About:     r.About,
		Skills:    r.Skills,
	}
	if r.Gender != nil {
		g := models.Gender(*r.Gender)
		u.Gender = &g
	}
	return u
}

// ChangePasswordRequest 是修改密码请求的结构体。
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72,nefield=CurrentPassword"`
}

func (r *ChangePasswordRequest) Validate() error { return validate.Struct(r) }

// SendRequestPayload 是发送连接请求的请求体。
type SendRequestPayload struct {
	RecipientID uint `json:"recipientId" validate:"required,gt=0"`
}

func (r *SendRequestPayload) Validate() error { return validate.Struct(r) }
