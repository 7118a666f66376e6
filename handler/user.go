package handler

import (
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jaswdr/faker"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"rentease/mail"
	"rentease/model"
	"rentease/policy"
)

func (h *Handler) FetchUsers(c echo.Context) error {
	users := []model.User{}
	res, err := paginate(c, func() *gorm.DB {
		return h.DB.Model(&model.User{})
	}, &users, orderBy("created_at desc"))
	if err != nil {
		return err
	}

	res.Results = userArrFormatter(users, currentUser(c))
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) FetchUser(c echo.Context) error {
	id := c.Param("id")
	if err := validID(id); err != nil {
		return err
	}

	var user model.User
	r := h.DB.First(&user, "id = ?", id)
	if r.Error != nil {
		if errors.Is(r.Error, gorm.ErrRecordNotFound) {
			return &echo.HTTPError{Code: http.StatusNotFound, Message: "User not found."}
		}
		c.Logger().Error(r.Error)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch user."}
	}

	return c.JSON(http.StatusOK, userFormatter(user, currentUser(c)))
}

// DeleteUser removes the account together with its houses, requests, reviews and favorites.
func (h *Handler) DeleteUser(c echo.Context) error {
	actor, err := requireUser(c)
	if err != nil {
		return err
	}

	id := c.Param("id")
	if err := validID(id); err != nil {
		return err
	}
	if !policy.CanManageUser(actor, id) {
		return &echo.HTTPError{Code: http.StatusForbidden, Message: "You do not have permission to delete this user."}
	}

	r := h.DB.Delete(&model.User{}, "id = ?", id)
	if r.Error != nil {
		c.Logger().Error(r.Error)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to delete user."}
	}
	if r.RowsAffected == 0 {
		return &echo.HTTPError{Code: http.StatusNotFound, Message: "User not found."}
	}

	return c.JSON(http.StatusOK, DeleteResponse{Deleted: r.RowsAffected})
}

// SetUserRole grants or revokes admin. The new roles apply from the next login.
func (h *Handler) SetUserRole(c echo.Context) error {
	id := c.Param("id")
	if err := validID(id); err != nil {
		return err
	}

	f := model.SetRoleReq{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	if err := c.Validate(&f); err != nil {
		return err
	}

	var roles []string
	switch f.Role {
	case model.RoleUser:
		roles = []string{model.RoleUser}
	case model.RoleAdmin:
		roles = []string{model.RoleUser, model.RoleAdmin}
	default:
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Role must be either user or admin."}
	}

	var user model.User
	if err := h.DB.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &echo.HTTPError{Code: http.StatusNotFound, Message: "User not found."}
		}
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to fetch user."}
	}

	user.Roles = roles
	if err := h.DB.Model(&user).Select("roles").Updates(&user).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Failed to update user."}
	}

	return c.JSON(http.StatusOK, user.ToPrivateFormat())
}

// usernameFromSignup derives a username from the email when none was given.
func usernameFromSignup(u model.SignupUserReq, tryCount int) string {
	username := u.Username
	if username == "" {
		local := strings.SplitN(u.Email, "@", 2)[0]
		username = model.StripUsername(strings.ReplaceAll(local, "+", "."))
		if !model.IsValidUsername(username) {
			username = model.StripUsername(faker.New().Internet().User())
		}
	}

	if tryCount > 0 {
		// add random number 0-100 to username
		username = username + strconv.Itoa(rand.Intn(100))
	}

	return username
}

func (h *Handler) Signup(c echo.Context) error {
	u := model.SignupUserReq{}
	if err := c.Bind(&u); err != nil {
		return err
	}

	u.Strip()
	if err := c.Validate(&u); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	var existing int64
	if err := h.DB.Model(&model.User{}).Where("email = ?", u.Email).Count(&existing).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError}
	}
	if existing > 0 {
		return &echo.HTTPError{Code: http.StatusConflict, Message: "User already exists."}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return &echo.HTTPError{Code: http.StatusInternalServerError}
	}

	newUser := model.User{
		Email:     u.Email,
		FirstName: strings.TrimSpace(u.FirstName),
		LastName:  strings.TrimSpace(u.LastName),
		Phone:     u.Phone,
		Address:   strings.TrimSpace(u.Address),
		Roles:     []string{model.RoleUser},
		Password:  string(hash),
	}
	if h.Auth.AdminEmail != "" && model.StripEmail(h.Auth.AdminEmail) == u.Email {
		newUser.Roles = append(newUser.Roles, model.RoleAdmin)
	}

	for tryCount := 0; newUser.Username == ""; tryCount++ {
		username := usernameFromSignup(u, tryCount)

		var taken int64
		if err := h.DB.Model(&model.User{}).Where("username = ?", username).Count(&taken).Error; err != nil {
			c.Logger().Error(err)
			return &echo.HTTPError{Code: http.StatusInternalServerError}
		}
		if taken == 0 {
			newUser.Username = username
		} else if u.Username != "" {
			return &echo.HTTPError{Code: http.StatusConflict, Message: "This username is already in use."}
		}
	}

	r := h.DB.Create(&newUser)
	if r.Error != nil {
		if model.IsUniqueViolation(r.Error) {
			return &echo.HTTPError{Code: http.StatusConflict, Message: "User already exists."}
		}
		c.Logger().Error(r.Error)
		return &echo.HTTPError{Code: http.StatusInternalServerError}
	}

	token, err := VerificationToken(h.Auth.JWTSecret, newUser.ID, time.Now())
	if err != nil {
		c.Logger().Error(err)
	} else {
		mail.SendAsync(h.Mailer, mail.VerificationEmail(newUser.Email, newUser.Username, h.verificationLink(token)))
	}

	return c.JSON(http.StatusCreated, newUser.ToPrivateFormat())
}

func (h *Handler) VerifyEmail(c echo.Context) error {
	raw := c.QueryParam("token")
	if raw == "" {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Invalid token"}
	}

	userID, err := parseVerificationToken(h.Auth.JWTSecret, raw)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Activation link expired"}
		}
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Invalid token"}
	}

	r := h.DB.Model(&model.User{}).Where("id = ?", userID).Update("is_email_verified", true)
	if r.Error != nil {
		c.Logger().Error(r.Error)
		return &echo.HTTPError{Code: http.StatusInternalServerError}
	}
	if r.RowsAffected == 0 {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Invalid token"}
	}

	return c.JSON(http.StatusOK, map[string]string{"email": "Successfully activated"})
}

func (h *Handler) Login(c echo.Context) error {
	f := model.LoginUserReq{}
	if err := c.Bind(&f); err != nil {
		return err
	}

	if err := c.Validate(&f); err != nil {
		return err
	}

	invalid := &echo.HTTPError{Code: http.StatusUnauthorized, Message: "Invalid email or password."}

	u := model.User{}
	r := h.DB.Where("email = ?", model.StripEmail(f.Email)).First(&u)
	if r.Error != nil {
		if errors.Is(r.Error, gorm.ErrRecordNotFound) {
			return invalid
		}
		c.Logger().Error(r.Error)
		return &echo.HTTPError{Code: http.StatusInternalServerError}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(f.Password)); err != nil {
		return invalid
	}

	if h.Auth.RequireEmailVerification && !u.IsEmailVerified {
		return &echo.HTTPError{Code: http.StatusForbidden, Message: "Please verify your email address first."}
	}

	signedToken, err := h.issueToken(u)
	if err != nil {
		return &echo.HTTPError{Code: http.StatusInternalServerError, Message: "Something went wrong. Please try again later."}
	}

	return c.JSON(http.StatusOK, model.LoginUserReqResponse{Token: signedToken})
}

func (h *Handler) loadSelf(c echo.Context) (model.User, error) {
	actor, err := requireUser(c)
	if err != nil {
		return model.User{}, err
	}

	u := model.User{}
	r := h.DB.First(&u, "id = ?", actor.ID)
	if r.Error != nil {
		if errors.Is(r.Error, gorm.ErrRecordNotFound) {
			return model.User{}, &echo.HTTPError{Code: http.StatusNotFound, Message: "User not found. Please try again later."}
		}
		c.Logger().Error(r.Error)
		return model.User{}, &echo.HTTPError{Code: http.StatusInternalServerError}
	}
	return u, nil
}

func (h *Handler) Me(c echo.Context) error {
	u, err := h.loadSelf(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, u.ToPrivateFormat())
}

func (h *Handler) UpdateMe(c echo.Context) error {
	u, err := h.loadSelf(c)
	if err != nil {
		return err
	}

	f := model.ProfileUpdate{}
	if err := c.Bind(&f); err != nil {
		return err
	}

	changes, err := f.Changes()
	if err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: err.Error()}
	}

	if username, ok := changes["username"]; ok && username != u.Username {
		var taken int64
		if err := h.DB.Model(&model.User{}).Where("username = ? AND id <> ?", username, u.ID).Count(&taken).Error; err != nil {
			c.Logger().Error(err)
			return &echo.HTTPError{Code: http.StatusInternalServerError}
		}
		if taken > 0 {
			return &echo.HTTPError{Code: http.StatusBadRequest, Message: "This username is already in use."}
		}
	}

	if len(changes) > 0 {
		r := h.DB.Model(&u).Updates(changes)
		if r.Error != nil {
			if model.IsUniqueViolation(r.Error) {
				return &echo.HTTPError{Code: http.StatusBadRequest, Message: "This username is already in use."}
			}
			c.Logger().Error(r.Error)
			return &echo.HTTPError{Code: http.StatusInternalServerError}
		}
	}

	return h.Me(c)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	u, err := h.loadSelf(c)
	if err != nil {
		return err
	}

	f := model.ChangePasswordReq{}
	if err := c.Bind(&f); err != nil {
		return err
	}
	if err := c.Validate(&f); err != nil {
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(f.CurrentPassword)); err != nil {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Current password is incorrect."}
	}
	if f.NewPassword != f.NewPassword2 {
		return &echo.HTTPError{Code: http.StatusBadRequest, Message: "Passwords must match."}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(f.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return &echo.HTTPError{Code: http.StatusInternalServerError}
	}

	if err := h.DB.Model(&u).Update("password", string(hash)).Error; err != nil {
		c.Logger().Error(err)
		return &echo.HTTPError{Code: http.StatusInternalServerError}
	}

	mail.SendAsync(h.Mailer, mail.PasswordChangedEmail(u.Email, u.Username))

	return c.JSON(http.StatusOK, DetailResponse{Detail: "Password updated."})
}
