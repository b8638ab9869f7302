package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-bus-trip-reservation/internal/application"
)

const (
	// HeaderUserID は JWT を使わない構成での呼び出し元ユーザーID
	HeaderUserID = "X-User-ID"
	// HeaderUserRole は JWT を使わない構成での呼び出し元ロール
	HeaderUserRole = "X-User-Role"

	callerKey = "caller"
)

var errInvalidToken = errors.New("invalid token")

// IdentityConfig は呼び出し元識別の設定
type IdentityConfig struct {
	// JWTSecret が空でなければ Bearer JWT で識別する
	JWTSecret string
	// AdminRole は管理者とみなすロール名
	AdminRole string
	// TrustRoleHeader はヘッダー構成で X-User-Role を信用するか。
	// 前段のゲートウェイがヘッダーを付け直す構成でのみ有効にする
	TrustRoleHeader bool
}

// Identity は呼び出し元を識別してコンテキストに格納するミドルウェア
// JWTSecret が設定されていれば Bearer JWT（HS256, sub=ユーザーID, role）を検証し、
// 未設定なら X-User-ID ヘッダーを使う。X-User-Role は TrustRoleHeader のときだけ見る
// 資格情報がないリクエストはそのまま通し、必要なハンドラーが 401 を返す
func Identity(cfg IdentityConfig) echo.MiddlewareFunc {
	secret, adminRole := cfg.JWTSecret, cfg.AdminRole
	headerRole := ""
	if cfg.TrustRoleHeader {
		headerRole = adminRole
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var (
				caller application.Caller
				found  bool
				err    error
			)
			if secret != "" {
				caller, found, err = callerFromToken(c.Request(), secret, adminRole)
			} else {
				caller, found, err = callerFromHeaders(c.Request(), headerRole)
			}
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "認証情報が不正です")
			}
			if found {
				c.Set(callerKey, caller)
			}
			return next(c)
		}
	}
}

// CallerFrom はコンテキストに格納された呼び出し元を返す
func CallerFrom(c echo.Context) (application.Caller, bool) {
	caller, ok := c.Get(callerKey).(application.Caller)
	return caller, ok
}

// SetCaller は呼び出し元をコンテキストに格納する
func SetCaller(c echo.Context, caller application.Caller) {
	c.Set(callerKey, caller)
}

func callerFromHeaders(req *http.Request, adminRole string) (application.Caller, bool, error) {
	raw := req.Header.Get(HeaderUserID)
	if raw == "" {
		return application.Caller{}, false, nil
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || userID <= 0 {
		return application.Caller{}, false, errInvalidToken
	}
	return application.Caller{
		UserID:  userID,
		IsAdmin: adminRole != "" && req.Header.Get(HeaderUserRole) == adminRole,
	}, true, nil
}

func callerFromToken(req *http.Request, secret, adminRole string) (application.Caller, bool, error) {
	auth := req.Header.Get(echo.HeaderAuthorization)
	if auth == "" {
		return application.Caller{}, false, nil
	}
	raw, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || raw == "" {
		return application.Caller{}, false, errInvalidToken
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return application.Caller{}, false, err
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return application.Caller{}, false, err
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return application.Caller{}, false, errInvalidToken
	}
	role, _ := claims["role"].(string)
	return application.Caller{
		UserID:  userID,
		IsAdmin: adminRole != "" && role == adminRole,
	}, true, nil
}
