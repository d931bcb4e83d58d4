package app

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tickrify1/tickrify.com-sub000/app/identity"
	"github.com/tickrify1/tickrify.com-sub000/app/models"
	"github.com/tickrify1/tickrify.com-sub000/app/usage"
	"github.com/tickrify1/tickrify.com-sub000/auth"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns the caller's identity, plan and monthly usage.
func (s *Server) Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	ctx := c.Request.Context()

	user, found := s.identity.CurrentUser(ctx, claims.Subject)
	if !found {
		user = userFromClaims(claims)
	}
	planType, limit, err := s.billing.Limit(ctx, claims.Subject)
	if err != nil {
		log.Printf("me plan lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load plan"})
		return
	}
	cur, err := s.usage.Current(ctx, claims.Subject)
	if err != nil {
		log.Printf("me usage lookup failed user=%s err=%v", claims.Subject, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load usage"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":         user,
		"plan":         planType,
		"analysesUsed": cur.Count,
		"month":        cur.Key(),
		"monthlyLimit": limitOrNil(limit),
		"remaining":    limitOrNil(usage.Remaining(cur.Count, limit)),
		"canAnalyze":   usage.CanAnalyze(cur.Count, limit),
	})
}

// limitOrNil renders Unlimited as null.
func limitOrNil(n int) any {
	if n == models.Unlimited {
		return nil
	}
	return n
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	sess, err := s.identity.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		c.JSON(authStatus(err), gin.H{"success": false, "error": authMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      sess.Token,
		"expires_at": sess.ExpiresAt,
		"user":       sess.User,
	})
}

func (s *Server) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	res, err := s.identity.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		c.JSON(authStatus(err), gin.H{"success": false, "error": authMessage(err)})
		return
	}
	out := gin.H{"success": true, "message": res.Message}
	if res.ConfirmationRequired {
		out["confirmation_required"] = true
	}
	if res.Session != nil {
		out["token"] = res.Session.Token
		out["expires_at"] = res.Session.ExpiresAt
		out["user"] = res.Session.User
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) Logout(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	// The body is optional; it names the browser whose pending checkout to drop.
	var req logoutRequest
	if c.Request.ContentLength != 0 {
		_ = c.ShouldBindJSON(&req)
	}
	ctx := c.Request.Context()
	// ResumeCheckout falls back to the user id when no client id is sent.
	for _, id := range []string{strings.TrimSpace(req.ClientID), claims.Subject} {
		if id != "" {
			s.pending.Clear(ctx, id)
		}
	}
	if err := s.identity.Logout(ctx, claims.Subject, claims.Token); err != nil {
		// Local state is already cleared; the client reloads either way.
		log.Printf("logout remote revoke failed user=%s err=%v", claims.Subject, err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reload": true})
}

type logoutRequest struct {
	ClientID string `json:"client_id"`
}

func (s *Server) UpdateProfile(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	var upd identity.ProfileUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request"})
		return
	}
	upd.AccessToken = claims.Token
	user, err := s.identity.UpdateProfile(c.Request.Context(), claims.Subject, upd)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "error": "failed to update profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// GoogleAuth returns the URL that starts a Google login.
func (s *Server) GoogleAuth(c *gin.Context) {
	redirectTo := c.Query("redirect_to")
	if redirectTo == "" {
		redirectTo = trimURL(s.cfg.Stripe.FrontendURL) + "/dashboard"
	}
	url, err := s.identity.GoogleURL(redirectTo)
	if err != nil {
		c.JSON(http.StatusNotImplemented, gin.H{"success": false, "error": authMessage(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "url": url})
}

func authStatus(err error) int {
	switch {
	case errors.Is(err, identity.ErrMissingCredentials), errors.Is(err, identity.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict
	}
	return http.StatusBadGateway
}

func authMessage(err error) string {
	switch {
	case errors.Is(err, identity.ErrMissingCredentials):
		return "Email e senha são obrigatórios"
	case errors.Is(err, identity.ErrWeakPassword):
		return "A senha deve ter pelo menos 6 caracteres"
	case errors.Is(err, identity.ErrInvalidCredentials):
		return "Email ou senha inválidos"
	case errors.Is(err, identity.ErrEmailTaken):
		return "Este email já está cadastrado"
	case errors.Is(err, identity.ErrOAuthUnavailable):
		return "Login com Google indisponível"
	}
	return "Erro ao autenticar"
}
