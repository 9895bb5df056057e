package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"skillbase/internal/appctx"
	"skillbase/internal/auth"
)

type sessionView struct {
	auth.Session
	Current bool `json:"current"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	c := appctx.From(r.Context())

	sessions, err := s.Sessions.ListForUser(r.Context(), c.User.ID)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("list sessions failed")
		writeError(w, http.StatusInternalServerError, "Failed to fetch sessions")
		return
	}

	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sessionView{Session: sess, Current: sess.ID == c.Session.ID})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": views})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	c := appctx.From(r.Context())
	id := chi.URLParam(r, "id")

	target, err := s.Sessions.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch session")
		return
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if target.UserID != c.User.ID {
		writeError(w, http.StatusForbidden, "You can only delete your own sessions.")
		return
	}

	if err := s.Sessions.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	if err := s.Cache.InvalidateSession(r.Context(), c.User.ID, id); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("session cache invalidate failed")
	}
	if id == c.Session.ID {
		auth.ClearSessionCookie(w, s.Config.SecureCookies())
	}
	s.audit(r, auth.EventSessionRevoke, c.User.ID, map[string]any{"sessionId": id})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session " + id + " deleted."})
}

type updateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=100"`
	Image *string `json:"image" validate:"omitempty,max=2048"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	c := appctx.From(r.Context())

	var req updateProfileRequest
	if !s.bind(w, r, &req) {
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Name cannot be empty")
		return
	}

	params := auth.UpdateProfileParams{Name: req.Name, Image: req.Image}
	if req.Image != nil {
		if *req.Image == "" {
			params.Image = nil
			params.ClearImage = true
		} else if err := s.validate.Var(*req.Image, "http_url"); err != nil {
			writeError(w, http.StatusBadRequest, "image must be a valid URL")
			return
		}
	}

	user, err := s.Users.UpdateProfile(r.Context(), c.User.ID, params)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("update profile failed")
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	_ = s.Cache.InvalidateUser(r.Context(), user.ID)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated successfully.",
		"user":    user,
	})
}

type deleteProfileRequest struct {
	Password string `json:"password" validate:"omitempty,max=128"`
}

// handleDeleteProfile removes the caller's user; sessions and accounts go
// with it through the schema's cascades. Users holding a password must
// confirm it.
func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c := appctx.From(ctx)

	var req deleteProfileRequest
	if r.ContentLength != 0 && !s.bind(w, r, &req) {
		return
	}

	cred, err := s.Accounts.FindCredential(ctx, c.User.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}
	if cred != nil && cred.Password != nil && !s.Hasher.Compare(*cred.Password, req.Password) {
		writeError(w, http.StatusForbidden, "INVALID_PASSWORD")
		return
	}

	if err := s.Users.Delete(ctx, c.User.ID); err != nil && !errors.Is(err, auth.ErrUserNotFound) {
		hlog.FromRequest(r).Error().Err(err).Msg("delete user failed")
		writeError(w, http.StatusInternalServerError, "Failed to delete account")
		return
	}
	if err := s.Verifications.DeleteByIdentifier(ctx, emailVerificationKey+c.User.Email); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("delete pending verifications failed")
	}
	_ = s.Cache.InvalidateUser(ctx, c.User.ID)
	auth.ClearSessionCookie(w, s.Config.SecureCookies())
	s.audit(r, auth.EventUserDeleted, c.User.ID, nil)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Account for " + c.User.Email + " successfully deleted.",
	})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	c := appctx.From(r.Context())
	accounts, err := s.userAccounts(r.Context(), c)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load accounts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	c := appctx.From(r.Context())
	id := chi.URLParam(r, "id")

	err := s.Accounts.Unlink(r.Context(), c.User.ID, id)
	switch {
	case errors.Is(err, auth.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
		return
	case errors.Is(err, auth.ErrLastAccount):
		writeError(w, http.StatusConflict, "You cannot remove your last sign-in method.")
		return
	case err != nil:
		hlog.FromRequest(r).Error().Err(err).Msg("unlink account failed")
		writeError(w, http.StatusInternalServerError, "Failed to unlink account")
		return
	}
	s.audit(r, auth.EventAccountUnlink, c.User.ID, map[string]any{"accountId": id})

	writeJSON(w, http.StatusOK, map[string]string{"message": "Account unlinked."})
}

const activityLimit = 50

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	c := appctx.From(r.Context())
	events, err := s.Audit.Recent(r.Context(), c.User.ID, activityLimit)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("load activity failed")
		writeError(w, http.StatusInternalServerError, "Failed to load activity")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
