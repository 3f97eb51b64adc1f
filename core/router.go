package core

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// Session value keys.
const (
	sessionUsernameKey  = "username"
	sessionLoginTimeKey = "login_time"
	sessionExpiresKey   = "expires"
)

// auditTimeout bounds the audit write that follows each verdict.
const auditTimeout = 2 * time.Second

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, logger *zap.Logger, store sessions.Store, validator LoginService, metrics *Metrics, audit AuditSink) *gin.Engine {
	r := gin.New()
	startedAt := time.Now()

	// Global middleware: request id -> recovery -> access log -> metrics -> CORS/preflight
	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(logger))
	r.Use(AccessLogMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Use(CORSMiddleware(cfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, CollectServiceStatus(cfg, startedAt))
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	login := loginHandler(cfg, logger, store, validator, metrics, audit)
	r.POST("/functions/v1/validate-login", login)

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", login)

		api.GET("/auth/session", func(c *gin.Context) {
			sess, err := store.Get(c.Request, sessionName)
			if err != nil {
				// undecodable or foreign cookie
				respondError(c, http.StatusUnauthorized, msgNotAuthenticated)
				return
			}
			username, _ := sess.Values[sessionUsernameKey].(string)
			loginTime, _ := sess.Values[sessionLoginTimeKey].(string)
			expires, _ := sess.Values[sessionExpiresKey].(int64)
			if username == "" {
				respondError(c, http.StatusUnauthorized, msgNotAuthenticated)
				return
			}
			if time.Now().Unix() > expires {
				clearSession(cfg, c, sess, logger)
				respondError(c, http.StatusUnauthorized, msgNotAuthenticated)
				return
			}
			c.JSON(http.StatusOK, apiResponse{Success: true, User: &User{Username: username, LoginTime: loginTime}})
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			sess, _ := store.Get(c.Request, sessionName)
			if sess == nil {
				c.Status(http.StatusNoContent)
				return
			}
			if !clearSession(cfg, c, sess, logger) {
				respondError(c, http.StatusInternalServerError, msgInternal)
				return
			}
			c.Status(http.StatusNoContent)
		})
	}

	return r
}

func loginHandler(cfg Config, logger *zap.Logger, store sessions.Store, validator LoginService, metrics *Metrics, audit AuditSink) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		reqID := requestID(c)

		var (
			req  LoginRequest
			user User
		)
		err := c.ShouldBindJSON(&req)
		if err != nil {
			// an unreadable body is an Internal verdict, not a missing pair
			err = fmt.Errorf("decode login body: %w", err)
			req = LoginRequest{}
		} else {
			user, err = validator.Validate(c.Request.Context(), req)
		}
		kind := KindOf(err)
		metrics.ObserveLogin(kind)

		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("username", req.Username),
			zap.String("kind", string(kind)),
			zap.Duration("duration", time.Since(start)),
		}
		switch kind {
		case KindSuccess, KindInvalidCredentials, KindBadRequest:
			logger.Info("login attempt", fields...)
		default:
			logger.Error("login attempt", append(fields, zap.Error(err))...)
		}

		auditCtx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), auditTimeout)
		if aerr := audit.Record(auditCtx, AuditEntry{RequestID: reqID, Username: req.Username, Kind: kind, At: time.Now().UTC()}); aerr != nil {
			logger.Warn("audit record failed", zap.String("request_id", reqID), zap.Error(aerr))
		}
		cancel()

		if err != nil {
			status, msg := verdictStatus(err)
			respondError(c, status, msg)
			return
		}

		if err := saveLoginSession(cfg, c, store, user); err != nil {
			// the verdict stands without the cookie
			logger.Warn("failed to set session", zap.String("request_id", reqID), zap.Error(err))
		}

		c.JSON(http.StatusOK, apiResponse{Success: true, Message: msgLoginSuccessful, User: &user})
	}
}

func saveLoginSession(cfg Config, c *gin.Context, store sessions.Store, user User) error {
	session, err := store.Get(c.Request, sessionName)
	if session == nil {
		return err
	}
	// reset session values (simple rotation)
	session.Values = map[interface{}]interface{}{}
	session.Values[sessionUsernameKey] = user.Username
	session.Values[sessionLoginTimeKey] = user.LoginTime
	session.Values[sessionExpiresKey] = time.Now().Add(sessionTTL(cfg)).Unix()
	applySessionOptions(cfg, session)
	return session.Save(c.Request, c.Writer)
}

func clearSession(cfg Config, c *gin.Context, sess *sessions.Session, logger *zap.Logger) bool {
	sess.Values = map[interface{}]interface{}{}
	applySessionOptions(cfg, sess)
	sess.Options.MaxAge = -1 // Must be set AFTER applySessionOptions to properly delete cookie
	if err := sess.Save(c.Request, c.Writer); err != nil {
		logger.Warn("failed to clear session", zap.String("request_id", requestID(c)), zap.Error(err))
		return false
	}
	return true
}
