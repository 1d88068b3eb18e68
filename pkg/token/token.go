package token

import (
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/hertz-contrib/jwt"

	"GoalEngine/config"
	"GoalEngine/pkg/errors"
)

const (
	IdentityKey = "uid"

	serviceTokenTTL = 5 * time.Minute
)

var (
	// 这个实例会被 middleware 使用，只做校验，用户 token 由账号服务签发
	sharedGenerator *jwt.HertzJWTMiddleware
)

func Init() error {
	var err error
	sharedGenerator, err = jwt.New(&jwt.HertzJWTMiddleware{
		Key:         []byte(config.Cfg.JWTSecret),
		Timeout:     time.Hour,
		IdentityKey: IdentityKey,
		TimeFunc:    time.Now,
	})

	if err != nil {
		return fmt.Errorf("failed to initialize token generator: %w", err)
	}

	return nil
}

// GetGenerator 获取共享的 token 生成器（供 middleware 使用）
func GetGenerator() *jwt.HertzJWTMiddleware {
	return sharedGenerator
}

// Signer 服务间调用的短期 token
type Signer struct {
	secret  []byte
	service string
	now     func() time.Time
}

func NewSigner(secret, service string) *Signer {
	return &Signer{secret: []byte(secret), service: service, now: time.Now}
}

// FromConfig 使用 BACKEND_JWT_SECRET 签名
func FromConfig() *Signer {
	return NewSigner(config.Cfg.BackendJWTSecret, config.Cfg.BackendServiceName)
}

// ServiceToken 为用户签发调用后端的 token，未配置密钥时返回空串
func (s *Signer) ServiceToken(userID string) (string, error) {
	if s == nil {
		return "", errors.ErrTokenGeneratorNotInitialized
	}
	if len(s.secret) == 0 {
		return "", nil
	}

	now := s.now()
	claims := jwtv5.MapClaims{
		IdentityKey: userID,
		"sub":       s.service,
		"iat":       now.Unix(),
		"exp":       now.Add(serviceTokenTTL).Unix(),
	}

	signed, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign service token: %w", err)
	}
	return signed, nil
}

// Verify 校验服务 token 并返回其中的用户 ID
func (s *Signer) Verify(tokenString string) (string, error) {
	tok, err := jwtv5.Parse(tokenString, func(t *jwtv5.Token) (interface{}, error) {
		if t.Method != jwtv5.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwtv5.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return "", errors.Unauthorized
	}
	uid, ok := claims[IdentityKey].(string)
	if !ok {
		return "", errors.Unauthorized
	}
	return uid, nil
}
