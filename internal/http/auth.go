package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"storefront/internal/domain"
)

const actorKey = "actor"

var ErrInvalidToken = errors.New("invalid token")

// Claims содержимое bearer-токена
type Claims struct {
	UserID string `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator проверяет и выпускает HS256 токены
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Issue signs a token for the actor; used by the demo seeding and tests.
func (a *Authenticator) Issue(actor domain.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: actor.UserID,
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) Parse(tokenString string) (domain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return domain.Actor{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.Actor{}, ErrInvalidToken
	}
	role := domain.Role(claims.Role)
	if role != domain.RoleAdmin {
		role = domain.RoleCustomer
	}
	return domain.Actor{UserID: claims.UserID, Role: role}, nil
}

// authenticate requires a valid bearer token and stores the actor.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "unauthorized"})
			return
		}
		actor, err := s.auth.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "kind": "unauthorized"})
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorFrom(c *gin.Context) domain.Actor {
	v, _ := c.Get(actorKey)
	a, _ := v.(domain.Actor)
	return a
}

const rbacModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

// Resources and actions checked by authorize.
const (
	resOrders        = "orders"
	resPayments      = "payments"
	resCart          = "cart"
	resAdminOrders   = "admin.orders"
	resAdminProducts = "admin.products"

	actRead  = "read"
	actWrite = "write"
)

// NewEnforcer builds the role policy; admin inherits every customer right.
func NewEnforcer() (*casbin.Enforcer, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to parse RBAC model: %w", err)
	}
	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize RBAC enforcer: %w", err)
	}
	policies := [][]string{
		{string(domain.RoleCustomer), resOrders, actRead},
		{string(domain.RoleCustomer), resOrders, actWrite},
		{string(domain.RoleCustomer), resPayments, actRead},
		{string(domain.RoleCustomer), resPayments, actWrite},
		{string(domain.RoleCustomer), resCart, actRead},
		{string(domain.RoleCustomer), resCart, actWrite},
		{string(domain.RoleAdmin), resAdminOrders, actRead},
		{string(domain.RoleAdmin), resAdminOrders, actWrite},
		{string(domain.RoleAdmin), resAdminProducts, actWrite},
	}
	for _, p := range policies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}
	if _, err := e.AddGroupingPolicy(string(domain.RoleAdmin), string(domain.RoleCustomer)); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Server) authorize(obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		allowed, err := s.enforcer.Enforce(string(actor.Role), obj, act)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "authorization check failed", "kind": "internal"})
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "kind": "forbidden"})
			return
		}
		c.Next()
	}
}
