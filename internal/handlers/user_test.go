package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/launchkit/launchkit/internal/hash"
	"github.com/launchkit/launchkit/internal/models"
	"github.com/launchkit/launchkit/internal/rbac"
	"github.com/launchkit/launchkit/internal/session"
)

func TestMe(t *testing.T) {
	env := newEnv(t)
	user := env.seedUser(t, "a@x.com", rbac.RoleUser)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	c, rec := jsonRequest(http.MethodGet, "/api/v1/me", "")
	actAs(c, user)
	require.NoError(t, h.Me(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, user.ID, got.ID)
	require.NotContains(t, rec.Body.String(), user.PasswordHash)
}

func TestUpdateMePatchesOnlyGivenFields(t *testing.T) {
	env := newEnv(t)
	user := env.seedUser(t, "a@x.com", rbac.RoleUser)
	require.NoError(t, env.DB.Model(&models.User{}).Where("id = ?", user.ID).
		Update("name", "Before").Error)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	c, rec := jsonRequest(http.MethodPatch, "/api/v1/me",
		`{"avatar_url":"https://img.example/a.png"}`)
	user.Name = "Before"
	actAs(c, user)
	require.NoError(t, h.UpdateMe(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.User
	require.NoError(t, env.DB.Where("id = ?", user.ID).First(&got).Error)
	require.Equal(t, "Before", got.Name, "omitted field is untouched")
	require.Equal(t, "https://img.example/a.png", got.AvatarURL)
}

func TestChangePassword(t *testing.T) {
	env := newEnv(t)
	user := env.seedUser(t, "a@x.com", rbac.RoleUser)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	// Two devices: the one making the change keeps its session.
	current, err := env.Sessions.Login(t.Context(), "a@x.com", "Secret123", session.Meta{})
	require.NoError(t, err)
	other, err := env.Sessions.Login(t.Context(), "a@x.com", "Secret123", session.Meta{})
	require.NoError(t, err)

	c, rec := jsonRequest(http.MethodPost, "/api/v1/me/password",
		`{"current_password":"Secret123","new_password":"NewSecret456"}`)
	c.Set("user", &user)
	c.Set("session", current)
	require.NoError(t, h.ChangePassword(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.User
	require.NoError(t, env.DB.Where("id = ?", user.ID).First(&got).Error)
	require.True(t, hash.CheckPassword(got.PasswordHash, "NewSecret456"))

	_, err = env.Sessions.Validate(t.Context(), current.Token)
	require.NoError(t, err)
	_, err = env.Sessions.Validate(t.Context(), other.Token)
	require.ErrorIs(t, err, session.ErrInvalidSession)
}

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	env := newEnv(t)
	user := env.seedUser(t, "a@x.com", rbac.RoleUser)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	c, _ := jsonRequest(http.MethodPost, "/api/v1/me/password",
		`{"current_password":"WrongPass1","new_password":"NewSecret456"}`)
	actAs(c, user)
	require.Equal(t, http.StatusBadRequest, httpStatus(t, h.ChangePassword(c)))
}

func TestListUsersPaginates(t *testing.T) {
	env := newEnv(t)
	for _, email := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		env.seedUser(t, email, rbac.RoleUser)
	}
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	c, rec := jsonRequest(http.MethodGet, "/api/v1/admin/users?page=1&size=2", "")
	require.NoError(t, h.ListUsers(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []models.User `json:"data"`
		Meta struct {
			Total int64 `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	require.EqualValues(t, 3, body.Meta.Total)
}

func TestUpdateRole(t *testing.T) {
	env := newEnv(t)
	admin := env.seedUser(t, "admin@x.com", rbac.RoleAdmin)
	target := env.seedUser(t, "target@x.com", rbac.RoleUser)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	c, rec := jsonRequest(http.MethodPatch, "/api/v1/admin/users/"+target.ID+"/role",
		`{"role":"editor"}`)
	c.SetParamNames("id")
	c.SetParamValues(target.ID)
	actAs(c, admin)
	require.NoError(t, h.UpdateRole(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.User
	require.NoError(t, env.DB.Where("id = ?", target.ID).First(&got).Error)
	require.Equal(t, string(rbac.RoleEditor), got.Role)
}

func TestUpdateRoleRejectsSelf(t *testing.T) {
	env := newEnv(t)
	admin := env.seedUser(t, "admin@x.com", rbac.RoleAdmin)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	c, _ := jsonRequest(http.MethodPatch, "/api/v1/admin/users/"+admin.ID+"/role",
		`{"role":"user"}`)
	c.SetParamNames("id")
	c.SetParamValues(admin.ID)
	actAs(c, admin)
	require.Equal(t, http.StatusForbidden, httpStatus(t, h.UpdateRole(c)))
}

func TestUpdateRoleRejectsUnknownRole(t *testing.T) {
	env := newEnv(t)
	admin := env.seedUser(t, "admin@x.com", rbac.RoleAdmin)
	target := env.seedUser(t, "target@x.com", rbac.RoleUser)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	c, rec := jsonRequest(http.MethodPatch, "/api/v1/admin/users/"+target.ID+"/role",
		`{"role":"superuser"}`)
	c.SetParamNames("id")
	c.SetParamValues(target.ID)
	actAs(c, admin)
	require.NoError(t, h.UpdateRole(c))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUserCascades(t *testing.T) {
	env := newEnv(t)
	admin := env.seedUser(t, "admin@x.com", rbac.RoleAdmin)
	target := env.seedUser(t, "target@x.com", rbac.RoleEditor)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	_, err := env.Sessions.Login(t.Context(), "target@x.com", "Secret123", session.Meta{})
	require.NoError(t, err)
	require.NoError(t, env.DB.Create(&models.Post{
		ID: "p1", Title: "T", Slug: "t", Body: "b", AuthorID: target.ID,
	}).Error)

	c, rec := jsonRequest(http.MethodDelete, "/api/v1/admin/users/"+target.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(target.ID)
	actAs(c, admin)
	require.NoError(t, h.DeleteUser(c))
	require.Equal(t, http.StatusNoContent, rec.Code)

	var sessions, posts, users int64
	require.NoError(t, env.DB.Model(&models.Session{}).Where("user_id = ?", target.ID).Count(&sessions).Error)
	require.NoError(t, env.DB.Model(&models.Post{}).Where("author_id = ?", target.ID).Count(&posts).Error)
	require.NoError(t, env.DB.Model(&models.User{}).Where("id = ?", target.ID).Count(&users).Error)
	require.Zero(t, sessions)
	require.Zero(t, posts)
	require.Zero(t, users)
}

func TestDeleteUserRejectsSelf(t *testing.T) {
	env := newEnv(t)
	admin := env.seedUser(t, "admin@x.com", rbac.RoleAdmin)
	h := &UserHandler{DB: env.DB, Sessions: env.Sessions}

	c, _ := jsonRequest(http.MethodDelete, "/api/v1/admin/users/"+admin.ID, "")
	c.SetParamNames("id")
	c.SetParamValues(admin.ID)
	actAs(c, admin)
	require.Equal(t, http.StatusForbidden, httpStatus(t, h.DeleteUser(c)))
}
