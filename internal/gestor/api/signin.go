package api

import (
	"encoding/json"
	"net/http"

	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/httpx"
	"github.com/nortesoft/gestor/pkg/slogx"
)

type signinRequest struct {
	Identifier string `json:"identifier" validate:"required,email"`
	Secret     string `json:"secret"     validate:"required"`
}

type signinResponse struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason,omitempty"`
}

const signinPage = `<!doctype html>
<html lang="es">
<head><meta charset="utf-8"><title>Gestor - Iniciar sesión</title></head>
<body>
<form method="post" action="/auth/signin">
  <label>Correo <input name="identifier" type="email" required></label>
  <label>Contraseña <input name="secret" type="password" required></label>
  <button type="submit">Entrar</button>
</form>
</body>
</html>
`

func (r *Router) handleSigninPage(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(signinPage))
}

// handleSignin authenticates against the identity provider through the
// session controller and, on success, mirrors the stored credentials
// into the browser's cookies.
func (r *Router) handleSignin(w http.ResponseWriter, req *http.Request) {
	log := slogx.FromContext(req.Context())

	var body signinRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, signinResponse{Reason: "malformed request body"})
		return
	}
	if err := r.validate.Struct(body); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, signinResponse{Reason: "identifier and secret are required"})
		return
	}

	result := r.sessions.Login(req.Context(), body.Identifier, body.Secret)
	if !result.OK {
		log.Info("signin rejected", "identifier", body.Identifier)
		httpx.WriteJSON(w, http.StatusUnauthorized, signinResponse{Reason: result.Reason})
		return
	}

	r.setSessionCookies(w, req)
	httpx.WriteJSON(w, http.StatusOK, signinResponse{OK: true})
}

func (r *Router) handleSignout(w http.ResponseWriter, req *http.Request) {
	r.sessions.Logout(req.Context())
	clearSessionCookies(w)
	httpx.WriteJSON(w, http.StatusOK, signinResponse{OK: true})
}

func (r *Router) setSessionCookies(w http.ResponseWriter, req *http.Request) {
	triple := r.sessions.Credentials(req.Context())
	if triple == nil {
		return
	}
	for name, value := range map[string]string{
		credstore.CookieAccess:   triple.Access,
		credstore.CookieIdentity: triple.Identity,
		credstore.CookieRenewal:  triple.Renewal,
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

func clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{credstore.CookieAccess, credstore.CookieIdentity, credstore.CookieRenewal} {
		http.SetCookie(w, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
}
