package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	SessionKeyUserID     = "user_id"
	SessionKeyPrivileged = "is_admin"
)

func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// SessionResolver reads the identity stored in a cookie session by the login service.
type SessionResolver struct {
	store sessions.Store
	name  string
}

func NewSessionResolver(store sessions.Store, name string) *SessionResolver {
	return &SessionResolver{store: store, name: name}
}

// Resolve returns nil when the request has no session cookie. A cookie that fails to
// decode is treated the same way so the token fallback still gets a chance.
func (s *SessionResolver) Resolve(r *http.Request) (*Identity, error) {
	if _, err := r.Cookie(s.name); err != nil {
		return nil, nil
	}

	session, err := s.store.Get(r, s.name)
	if err != nil {
		return nil, nil
	}

	userID, ok := session.Values[SessionKeyUserID].(string)
	if !ok || userID == "" {
		return nil, nil
	}
	privileged, _ := session.Values[SessionKeyPrivileged].(bool)
	return &Identity{UserID: userID, Privileged: privileged}, nil
}

// Save writes id into the named session on w.
func (s *SessionResolver) Save(w http.ResponseWriter, r *http.Request, id Identity) error {
	session, err := s.store.Get(r, s.name)
	if err != nil && session == nil {
		return err
	}
	session.Values[SessionKeyUserID] = id.UserID
	session.Values[SessionKeyPrivileged] = id.Privileged
	return session.Save(r, w)
}
