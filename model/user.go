package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

const defaultUserImage = "https://www.pngitem.com/pimgs/m/146-1468479_my-profile-icon-blank-profile-picture-circle-hd.png"

// Primary user struct for DB interactions
type User struct {
	ID              string   `json:"id" gorm:"type:uuid;primarykey"`
	Email           string   `json:"email" gorm:"uniqueIndex"`
	Username        string   `json:"username" gorm:"uniqueIndex"`
	FirstName       string   `json:"first_name"`
	LastName        string   `json:"last_name"`
	Phone           string   `json:"phone,omitempty"`
	Address         string   `json:"address,omitempty"`
	Image           string   `json:"image"`
	Password        string   `json:"-"`
	Roles           []string `json:"roles" gorm:"serializer:json"`
	IsEmailVerified bool     `json:"is_email_verified" gorm:"default:false"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// User extracted from JWT token
type AuthUser struct {
	ID      string   `json:"id"`
	Roles   []string `json:"roles"`
	IsAdmin bool     `json:"is_admin"`
}

// User to be returned to client
type PublicUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name"`
	Image     string `json:"image"`
}

// What the account owner (and admins) get to see
type PrivateUser struct {
	PublicUser
	Email           string    `json:"email"`
	Phone           string    `json:"phone"`
	Address         string    `json:"address"`
	Role            string    `json:"role"`
	IsEmailVerified bool      `json:"is_email_verified"`
	CreatedAt       time.Time `json:"created_at"`
}

func (base *User) BeforeCreate(tx *gorm.DB) (err error) {
	if base.ID != "" {
		return
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return err
	}

	base.ID = id.String()
	if base.Image == "" {
		base.Image = defaultUserImage
	}
	return
}

type SignupUserReq struct {
	Email     string `json:"email" validate:"required,email"`
	Username  string `json:"username"`
	Password  string `json:"password" validate:"required,min=8"`
	Password2 string `json:"password2" validate:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
}

func (u *SignupUserReq) Strip() {
	u.Email = StripEmail(u.Email)
	u.Username = StripUsername(u.Username)
	if u.Phone != "" {
		u.Phone = StripPhone(u.Phone)
	}
}

func (u SignupUserReq) Validate() error {
	if u.Password != u.Password2 {
		return errPasswordsMustMatch
	}
	if !IsValidEmail(u.Email) {
		return errInvalidEmail
	}
	if u.Username != "" && !IsValidUsername(u.Username) {
		return errInvalidUsername
	}
	if u.Phone != "" && !IsValidPhone(u.Phone) {
		return errInvalidPhone
	}
	return nil
}

type LoginUserReq struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginUserReqResponse struct {
	Token string `json:"token"`
}

type ChangePasswordReq struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	NewPassword2    string `json:"new_password2" validate:"required"`
}

type SetRoleReq struct {
	Role string `json:"role" validate:"required"`
}

// Only these fields can be changed through PATCH /account/me
type ProfileUpdate struct {
	Username  *string `json:"username"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	Image     *string `json:"image"`
}

// Changes validates every provided field and returns the column -> value map to persist.
func (p ProfileUpdate) Changes() (map[string]interface{}, error) {
	changes := map[string]interface{}{}

	if p.Username != nil {
		username := StripUsername(*p.Username)
		if !IsValidUsername(username) {
			return nil, errInvalidUsername
		}
		changes["username"] = username
	}
	if p.FirstName != nil {
		changes["first_name"] = trimmed(*p.FirstName)
	}
	if p.LastName != nil {
		changes["last_name"] = trimmed(*p.LastName)
	}
	if p.Phone != nil {
		phone := StripPhone(*p.Phone)
		if phone != "" && !IsValidPhone(phone) {
			return nil, errInvalidPhone
		}
		changes["phone"] = phone
	}
	if p.Address != nil {
		changes["address"] = trimmed(*p.Address)
	}
	if p.Image != nil {
		if *p.Image != "" && !IsValidURL(*p.Image) {
			return nil, errInvalidURL
		}
		changes["image"] = *p.Image
	}

	return changes, nil
}

type JwtCustomClaims struct {
	Roles string `json:"roles"`
	// Set only on single-purpose tokens, which never authenticate a request.
	Purpose string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// Claims of the link mailed out after signup
type VerifyEmailClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func (user User) FullName() string {
	return trimmed(user.FirstName + " " + user.LastName)
}

func (user User) ToPublicFormat() PublicUser {
	return PublicUser{
		ID:        user.ID,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		FullName:  user.FullName(),
		Image:     user.Image,
	}
}

func (user User) ToPrivateFormat() PrivateUser {
	role := RoleUser
	if user.IsAdmin() {
		role = RoleAdmin
	}

	return PrivateUser{
		PublicUser:      user.ToPublicFormat(),
		Email:           user.Email,
		Phone:           user.Phone,
		Address:         user.Address,
		Role:            role,
		IsEmailVerified: user.IsEmailVerified,
		CreatedAt:       user.CreatedAt,
	}
}

func (user User) IsAdmin() bool {
	return hasRole(user.Roles, RoleAdmin)
}

func (user User) AuthUser() AuthUser {
	return AuthUser{
		ID:      user.ID,
		Roles:   user.Roles,
		IsAdmin: user.IsAdmin(),
	}
}

func hasRole(roles []string, role string) bool {
	for _, v := range roles {
		if v == role {
			return true
		}
	}

	return false
}

// NewAuthUser builds the request identity from the roles carried in a token.
func NewAuthUser(id string, roles []string) AuthUser {
	return AuthUser{
		ID:      id,
		Roles:   roles,
		IsAdmin: hasRole(roles, RoleAdmin),
	}
}
