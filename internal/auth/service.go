// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/todoman/internal/model"
	"github.com/hitoshi/todoman/internal/repository"
)

// SessionCookieName はセッショントークンを運ぶCookie名。
const SessionCookieName = "session_id"

// CacheRecorder はセッションキャッシュのヒット/ミスを記録するインターフェース。
type CacheRecorder interface {
	RecordSessionCache(hit bool)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge   int           // セッション有効期間（秒）
	SessionCacheTTL time.Duration // 解決済みセッションのキャッシュ期間。0で無効
	Metrics         CacheRecorder // nilの場合は記録しない
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	providers   map[string]OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	cache       *SessionCache
	now         func() time.Time
}

// NewService はServiceを生成する。
// providersはName()をキーに登録され、同名の場合は後勝ちとなる。
func NewService(
	providers []OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	byName := make(map[string]OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		providers:   byName,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		config:      config,
		cache:       NewSessionCache(config.SessionCacheTTL),
		now:         time.Now,
	}
}

// Close はセッションキャッシュのバックグラウンド処理を停止する。
func (s *Service) Close() {
	s.cache.Stop()
}

// HasProvider は指定名のプロバイダーが登録されているかを返す。
func (s *Service) HasProvider(name string) bool {
	_, ok := s.providers[name]
	return ok
}

// GetLoginURL は指定プロバイダーのOAuth認証URLを生成する。
func (s *Service) GetLoginURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", model.NewUnknownProviderError(provider)
	}
	return p.GetLoginURL(state), nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 登録済みユーザーの場合はidentitiesテーブルで既存ユーザーを特定しログインする。
func (s *Service) HandleCallback(ctx context.Context, provider, code string) (*model.Session, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, model.NewUnknownProviderError(provider)
	}

	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := p.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesで既存ユーザーを特定し、いなければ作成
	userID, err := s.findOrCreateUser(ctx, userInfo)
	if err != nil {
		return nil, err
	}

	// 3. セッションを発行
	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// findOrCreateUser はidentityに紐付くユーザーIDを返す。
// 既存ユーザーはIdPのプロフィールを反映し、新規ユーザーはusersとidentitiesを同時に作成する。
func (s *Service) findOrCreateUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}

	if identity != nil {
		s.refreshProfile(ctx, identity.UserID, info)
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	now := s.now()
	newUser := &model.User{
		ID:        uuid.New().String(),
		Email:     info.Email,
		Name:      info.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         newUser.ID,
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	err = s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity)
	if errors.Is(err, repository.ErrIdentityExists) {
		// 同じアカウントの初回ログインが並行し、先に作成された方を使う
		identity, err = s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
		if err != nil {
			return "", fmt.Errorf("failed to find identity: %w", err)
		}
		if identity == nil {
			return "", fmt.Errorf("identity for %s disappeared after conflict", info.Provider)
		}
		return identity.UserID, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", newUser.ID),
		slog.String("provider", info.Provider),
	)
	return newUser.ID, nil
}

// refreshProfile はIdPのメールアドレスと表示名をユーザーに反映する。
// 失敗してもログインは継続する。
func (s *Service) refreshProfile(ctx context.Context, userID string, info *OAuthUserInfo) {
	if info.Email == "" || info.Name == "" {
		return
	}
	if err := s.userRepo.UpdateProfile(ctx, userID, info.Email, info.Name, s.now()); err != nil {
		slog.Warn("failed to refresh user profile",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	s.cache.DeleteByUserID(userID)
}

// GetSession はリクエストヘッダーから現在のセッションとユーザーを解決する。
// トークンが無い、未知、期限切れ、またはユーザーが存在しない場合はnil, nilを返す。
// セッションストアへの書き込みは行わない。
func (s *Service) GetSession(ctx context.Context, headers http.Header) (*model.AuthSession, error) {
	token := TokenFromHeaders(headers)
	if token == "" {
		return nil, nil
	}
	return s.resolve(ctx, token)
}

// Logout はセッションを破棄し、このプロセスのキャッシュからも取り除く。
func (s *Service) Logout(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("session ID is required")
	}

	s.cache.Delete(token)
	if err := s.sessionRepo.DeleteByID(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// InvalidateUser は指定ユーザーのキャッシュ済みセッションを取り除く。
func (s *Service) InvalidateUser(userID string) {
	s.cache.DeleteByUserID(userID)
}

// GetCurrentUser はセッショントークンから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, model.NewUnauthorizedError()
	}

	as, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if as == nil {
		return nil, model.NewUnauthorizedError()
	}
	return as.User, nil
}

// resolve はトークンからセッションとユーザーを解決する。キャッシュを優先する。
func (s *Service) resolve(ctx context.Context, token string) (*model.AuthSession, error) {
	if s.cache.Enabled() {
		if as, ok := s.cache.Get(token); ok {
			s.recordCache(true)
			return as, nil
		}
		s.recordCache(false)
	}

	session, err := s.sessionRepo.FindByID(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.Expired(s.now()) {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	as := &model.AuthSession{Session: session, User: user}
	s.cache.Set(token, as)
	return as, nil
}

func (s *Service) recordCache(hit bool) {
	if s.config.Metrics != nil {
		s.config.Metrics.RecordSessionCache(hit)
	}
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// TokenFromHeaders はセッショントークンをCookieまたはAuthorization: Bearerヘッダーから取り出す。
// Cookieを優先する。
func TokenFromHeaders(headers http.Header) string {
	if headers == nil {
		return ""
	}

	r := http.Request{Header: headers}
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	authz := headers.Get("Authorization")
	if len(authz) > len("Bearer ") && strings.EqualFold(authz[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return ""
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
