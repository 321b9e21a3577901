package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"github.com/zenazn/goji/web"

	"github.com/janelia-flyem/wsiview/wsi"
)

// authConfig holds the secret used to sign tokens and the file listing users and
// their privileges.
type authConfig struct {
	ProxyAddress string `toml:"proxy_address"`
	AuthFile     string `toml:"auth_file"`
	SecretKey    string `toml:"secret_key"`
}

// authorizer validates JWTs against a user privilege list.  A "*" user applies to
// anyone not listed.
type authorizer struct {
	secret []byte
	users  map[string]string // user -> "read", "write" or "readwrite"
}

// loadAuthFile returns nil if no authorization file is configured.
func loadAuthFile(cfg authConfig) (*authorizer, error) {
	if len(cfg.AuthFile) == 0 {
		wsi.Infof("No authorization file found.  Proceeding without authorization.\n")
		return nil, nil
	}
	if len(cfg.SecretKey) == 0 {
		return nil, fmt.Errorf("authorization file %q given without a secret key", cfg.AuthFile)
	}
	data, err := os.ReadFile(cfg.AuthFile)
	if err != nil {
		return nil, err
	}
	a := &authorizer{secret: []byte(cfg.SecretKey)}
	if err := json.Unmarshal(data, &a.users); err != nil {
		return nil, fmt.Errorf("bad authorization file %q: %v", cfg.AuthFile, err)
	}
	wsi.Infof("Loaded authorization for %d users from %s\n", len(a.users), cfg.AuthFile)
	return a, nil
}

// generateJWT returns a JWT given a user.
func (a *authorizer) generateJWT(user string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user": user})
	tokenString, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("error with JWT signing: %v", err)
	}
	return tokenString, nil
}

// isAuthorized is middleware that validates a JWT and sets the c.Env["user"] field
// to the authenticated user.
func (a *authorizer) isAuthorized(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		reqToken := r.Header.Get("Authorization")
		if len(reqToken) == 0 {
			unauthorized(w, r, "JWT required via Authorization in request header")
			return
		}
		splitToken := strings.Split(reqToken, "Bearer")
		if len(splitToken) != 2 {
			unauthorized(w, r, "bearer not in proper format")
			return
		}
		reqToken = strings.TrimSpace(splitToken[1])
		if len(reqToken) == 0 {
			unauthorized(w, r, "requests require JWT authentication")
			return
		}
		token, err := jwt.Parse(reqToken, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("error signing method: %v", token.Header["alg"])
			}
			return a.secret, nil
		})
		if err != nil {
			unauthorized(w, r, "error parsing JWT: %v", err)
			return
		}
		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			unauthorized(w, r, "failed authorization")
			return
		}
		user, ok := claims["user"].(string)
		if !ok {
			unauthorized(w, r, "user %v is not a simple string", claims["user"])
			return
		}
		if c.Env == nil {
			c.Env = make(map[interface{}]interface{})
		}
		c.Env["user"] = user
		if !a.allowed(user, r.Method) {
			forbidden(w, r, "user %q is not authorized", user)
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// allowed returns true if the user has the privilege for the HTTP method.
func (a *authorizer) allowed(user string, httpMethod string) bool {
	if len(a.users) == 0 {
		return false
	}
	method := strings.ToLower(httpMethod)
	readReq := method == "get" || method == "head" || method == "options"
	priv, found := a.users[user]
	if !found {
		priv, found = a.users["*"]
		if !found {
			return false
		}
	}
	switch priv {
	case "readwrite":
		return true
	case "read":
		return readReq
	case "write":
		return !readReq
	default:
		wsi.Errorf("Authorized user %q has unparsable privilege %q\n", user, priv)
		return false
	}
}
