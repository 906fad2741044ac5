package api

import (
	"context"
	"errors"
	"strings"

	auditHandlers "opsdash/api/handlers/audit"
	authHandlers "opsdash/api/handlers/auth"
	"opsdash/api/handlers/commands"
	"opsdash/api/handlers/services"
	userHandlers "opsdash/api/handlers/user"
	"opsdash/internal/audit"
	"opsdash/internal/auth"
	"opsdash/internal/command"
	"opsdash/internal/config"
	"opsdash/internal/control"
	"opsdash/internal/infra"
	"opsdash/internal/logger"
	middlewarepkg "opsdash/internal/middleware"
	"opsdash/internal/policy"
	"opsdash/internal/servicestatus"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const devJWTSecret = "opsdash-dev-secret-change-me"

// AppContainer 应用依赖容器
type AppContainer struct {
	DB          *gorm.DB
	Config      *config.Config
	RedisClient redis.UniversalClient

	// Runner 为空时按配置创建 command.Executor
	Runner command.Runner

	Recorder    *audit.Recorder
	Identities  *auth.IdentityStore
	JWTService  *auth.JWTService
	Sessions    *auth.SessionService
	Users       *auth.UserService
	Policy      *policy.Engine
	Control     *control.Service
	StatusStore *servicestatus.Store
	Poller      *servicestatus.Poller
	RateLimiter *middlewarepkg.RateLimiter
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Auth     *authHandlers.AuthHandler
	Commands *commands.CommandHandler
	Services *services.ServiceHandler
	Audit    *auditHandlers.AuditHandler
	User     *userHandlers.Handler
}

// ModelsToMigrate 需要自动迁移的全部模型
func ModelsToMigrate() []interface{} {
	return []interface{}{&auth.User{}, &audit.Record{}, &servicestatus.Record{}}
}

// InitContainer 初始化应用容器
func InitContainer(db *gorm.DB, cfg *config.Config) (*AppContainer, error) {
	container := &AppContainer{DB: db, Config: cfg}

	if err := container.initRedis(cfg); err != nil {
		return nil, err
	}
	if err := container.init(context.Background()); err != nil {
		return nil, err
	}
	return container, nil
}

// init 在 DB、Config、RedisClient 就绪后组装其余依赖
func (c *AppContainer) init(ctx context.Context) error {
	cfg := c.Config
	zl := logger.Get()

	if cfg.Database.AutoMigrate {
		if err := infra.AutoMigrate(c.DB, ModelsToMigrate()...); err != nil {
			return err
		}
	}

	c.Recorder = audit.NewRecorder(c.DB, zl)
	c.StatusStore = servicestatus.NewStore(c.DB)

	if err := c.initAuth(cfg, zl); err != nil {
		return err
	}
	if err := c.ensureBootstrapAdmin(ctx, cfg); err != nil {
		return err
	}

	c.initControl(cfg, zl)
	c.RateLimiter = middlewarepkg.NewRateLimiter(middlewarepkg.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.Burst,
	})
	return nil
}

// InitHandlers 初始化所有 Handlers
func (c *AppContainer) InitHandlers() *Handlers {
	return &Handlers{
		Auth:     authHandlers.NewAuthHandler(c.Sessions),
		Commands: commands.NewCommandHandler(c.Control),
		Services: services.NewServiceHandler(c.Control, c.StatusStore),
		Audit:    auditHandlers.NewAuditHandler(c.Recorder),
		User:     userHandlers.NewHandler(c.Users),
	}
}

// --- 内部初始化方法 ---

func (c *AppContainer) initRedis(cfg *config.Config) error {
	if !cfg.Redis.Enabled {
		return nil
	}
	redisCfg := normalizeRedisConfig(cfg.Redis)
	cfg.Redis = redisCfg

	client, err := infra.InitRedis(&redisCfg)
	if err != nil {
		// 吊销列表是可选能力，Redis 故障不阻止启动
		logger.Warn("Redis 不可用，登出后令牌将保持有效直至过期", zap.Error(err))
		return nil
	}
	c.RedisClient = client
	return nil
}

func (c *AppContainer) initAuth(cfg *config.Config, zl *zap.Logger) error {
	secret := strings.TrimSpace(cfg.Auth.JWTSecret)
	if secret == "" {
		// 生产模式必须显式配置密钥
		if strings.EqualFold(cfg.Server.Mode, "release") {
			return errors.New("auth.jwt_secret 未配置，release 模式禁止使用默认密钥")
		}
		secret = devJWTSecret
		logger.Warn("auth.jwt_secret 未配置，已回退为开发默认值")
	}

	c.Identities = auth.NewIdentityStore(c.DB)
	c.JWTService = auth.NewJWTService(secret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL, c.RedisClient)
	c.Sessions = auth.NewSessionService(c.Identities, c.JWTService, c.Recorder, zl)
	c.Users = auth.NewUserService(c.Identities, c.Recorder, cfg.Auth.AdminUsername, zl)
	return nil
}

func (c *AppContainer) ensureBootstrapAdmin(ctx context.Context, cfg *config.Config) error {
	password := cfg.Auth.AdminPassword
	generated := false
	if password == "" {
		var err error
		if password, err = auth.GeneratePassword(16); err != nil {
			return err
		}
		generated = true
	}

	user, created, err := c.Identities.EnsureBootstrapAdmin(ctx, auth.BootstrapAdmin{
		Username: cfg.Auth.AdminUsername,
		Email:    cfg.Auth.AdminEmail,
		Password: password,
	})
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	fields := []zap.Field{zap.String("username", user.Username)}
	if generated {
		fields = append(fields, zap.String("password", password))
	}
	logger.Warn("已创建初始管理员账号，请尽快修改密码", fields...)
	return nil
}

func (c *AppContainer) initControl(cfg *config.Config, zl *zap.Logger) {
	if c.Runner == nil {
		c.Runner = command.NewExecutor(command.Options{
			Shell:         cfg.Command.Shell,
			WorkingDir:    cfg.Command.WorkingDir,
			OutputCap:     cfg.Command.OutputCap,
			UseSudo:       cfg.Command.UseSudo,
			SudoPath:      cfg.Command.SudoPath,
			SystemctlPath: cfg.Command.SystemctlPath,
		}, zl)
	}

	denylist := cfg.Command.Denylist
	if len(denylist) == 0 {
		denylist = config.DefaultDenylist
	}
	c.Policy = policy.NewEngine(denylist, command.AllActions)

	c.Control = control.NewService(c.Policy, c.Runner, c.Recorder, c.StatusStore, control.Timeouts{
		Shell:  cfg.Command.ShellTimeout,
		Status: cfg.Command.StatusTimeout,
		Action: cfg.Command.ActionTimeout,
	}, zl)

	c.Poller = servicestatus.NewPoller(c.Runner, c.StatusStore, servicestatus.PollerOptions{
		Services:    cfg.Services.Watched,
		Interval:    cfg.Services.PollInterval,
		Timeout:     cfg.Command.StatusTimeout,
		Concurrency: cfg.Services.PollConcurrency,
	}, zl)
}

// Close 释放外部连接
func (c *AppContainer) Close() {
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
}
