package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Headers de identidade. Só o api-gateway os preenche, a partir de um token verificado;
// valores enviados pelo cliente são descartados na borda.
const (
	HeaderBettorID = "X-Bettor-ID"
	HeaderRole     = "X-Role"
)

// Papéis aceitos nos tokens
const (
	RoleBettor  = "bettor"
	RoleAdmin   = "admin"
	RoleService = "service" // chamadas internas entre serviços
)

var (
	ErrMissingSecret = errors.New("auth: jwt secret is required")
	ErrInvalidToken  = errors.New("auth: invalid token")
)

// Identity é quem fez a chamada, já verificado
type Identity struct {
	ID   string
	Role string
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// Privileged: admin ou outro serviço interno
func (i Identity) Privileged() bool { return i.Role == RoleAdmin || i.Role == RoleService }

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier valida tokens HS256 emitidos pelo serviço de autenticação
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Verifier{secret: []byte(secret), now: time.Now}, nil
}

// Verify devolve a identidade do token; sub e exp são obrigatórios
func (v *Verifier) Verify(token string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, errors.Join(ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}

	role := c.Role
	switch role {
	case "":
		role = RoleBettor
	case RoleBettor, RoleAdmin, RoleService:
	default:
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: c.Subject, Role: role}, nil
}

// Sign emite um token para a identidade (ferramentas internas e testes)
func Sign(secret string, id Identity, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: id.Role,
	})
	return tok.SignedString([]byte(secret))
}

// BearerToken extrai o token do header Authorization
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// FromRequest lê a identidade que o gateway gravou nos headers.
// Sem id não há identidade, qualquer que seja o papel.
func FromRequest(r *http.Request) Identity {
	id := r.Header.Get(HeaderBettorID)
	if id == "" {
		return Identity{}
	}
	role := r.Header.Get(HeaderRole)
	if role == "" {
		role = RoleBettor
	}
	return Identity{ID: id, Role: role}
}

// Strip remove os headers de identidade vindos do cliente
func Strip(h http.Header) {
	h.Del(HeaderBettorID)
	h.Del(HeaderRole)
}

// Set grava a identidade verificada nos headers repassados ao upstream
func Set(h http.Header, id Identity) {
	h.Set(HeaderBettorID, id.ID)
	h.Set(HeaderRole, id.Role)
}
