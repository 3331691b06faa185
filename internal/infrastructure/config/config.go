package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config 全局配置结构
// 设计说明：
// 1. 使用Viper管理配置：YAML文件 + 环境变量覆盖
// 2. 所有字段在启动时一次性确定（枚举式配置结构），
//    配置文件出现未知字段是硬错误——拼错的键静默生效过一次就够了
// 3. 熔断阈值等弹性参数不支持热更新（拓扑变更需重启进程）
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	CORS       CORSConfig       `mapstructure:"cors"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	MQ         MQConfig         `mapstructure:"mq"`
	Payment    PaymentConfig    `mapstructure:"payment"`
	Checkout   CheckoutConfig   `mapstructure:"checkout"`
	Resilience ResilienceConfig `mapstructure:"resilience"`
	Services   ServicesConfig   `mapstructure:"services"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Mode           string        `mapstructure:"mode"` // debug | release | test
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IngressTimeout time.Duration `mapstructure:"ingress_timeout"` // 入站请求deadline
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	Charset         string        `mapstructure:"charset"`
	ParseTime       bool          `mapstructure:"parse_time"`
	Loc             string        `mapstructure:"loc"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN 生成MySQL连接字符串
// 注意：loc参数需要URL编码（Asia/Shanghai → Asia%2FShanghai）
func (d DatabaseConfig) DSN() string {
	loc := url.QueryEscape(d.Loc)
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=%t&loc=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.Charset, d.ParseTime, loc)
}

type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr 返回Redis地址
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret                   string `mapstructure:"secret"`
	Algorithm                string `mapstructure:"algorithm"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
}

// AccessTokenExpire Access Token有效期
func (j JWTConfig) AccessTokenExpire() time.Duration {
	return time.Duration(j.AccessTokenExpireMinutes) * time.Minute
}

type RateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"` // 每分钟每标识的请求配额
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level        string `mapstructure:"level"`  // debug | info | warn | error
	Format       string `mapstructure:"format"` // console | json
	Output       string `mapstructure:"output"` // stdout | stderr | /path/to/file
	EnableCaller bool   `mapstructure:"enable_caller"`
}

type TracingConfig struct {
	Endpoint string `mapstructure:"endpoint"` // OTLP gRPC端点，空则不导出
}

type MQConfig struct {
	URL      string `mapstructure:"url"` // 空则禁用对账队列（仅日志兜底）
	Exchange string `mapstructure:"exchange"`
}

type PaymentConfig struct {
	BaseURL string        `mapstructure:"base_url"` // 支付网关地址
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CheckoutConfig struct {
	// FraudFailOpen 风控服务不可用时是否放行（记录降级标记）
	// true（默认）：为可用性放行，风险分记为0.5、action=review
	// false：风控不可用视为基础设施失败，Saga失败并补偿
	FraudFailOpen bool `mapstructure:"fraud_fail_open"`

	// FreeShippingThreshold 免运费门槛（分）；低于门槛收FlatShippingFee
	FreeShippingThreshold int64 `mapstructure:"free_shipping_threshold"`
	FlatShippingFee       int64 `mapstructure:"flat_shipping_fee"`
}

// ResilienceConfig 下游调用弹性配置（所有下游共享一份默认值）
type ResilienceConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	WindowSize       int           `mapstructure:"window_size"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	MaxRetries       int           `mapstructure:"max_retries"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	ExpBase          float64       `mapstructure:"exp_base"`
	Jitter           bool          `mapstructure:"jitter"`
	RetryStatuses    []int         `mapstructure:"retry_statuses"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
}

// ServiceEndpoint 单个下游服务的接入配置
type ServiceEndpoint struct {
	URL        string `mapstructure:"url"`
	AuthSecret string `mapstructure:"auth_secret"` // X-Service-Auth密钥，缺失时启动告警
}

// ServicesConfig 下游服务表（拓扑静态，变更需重启）
type ServicesConfig struct {
	Backend         ServiceEndpoint `mapstructure:"backend"`
	Recommendations ServiceEndpoint `mapstructure:"recommendations"`
	Search          ServiceEndpoint `mapstructure:"search"`
	Pricing         ServiceEndpoint `mapstructure:"pricing"`
	Chat            ServiceEndpoint `mapstructure:"chat"`
	Fraud           ServiceEndpoint `mapstructure:"fraud"`
	Forecast        ServiceEndpoint `mapstructure:"forecast"`
	Vision          ServiceEndpoint `mapstructure:"vision"`
}

// envBindings 环境变量 → 配置键 的显式绑定
// 对外契约使用的变量名（部署文档引用），不跟随viper前缀规则
var envBindings = map[string]string{
	"server.host":                     "GATEWAY_HOST",
	"server.port":                     "GATEWAY_PORT",
	"jwt.secret":                      "JWT_SECRET",
	"jwt.algorithm":                   "JWT_ALGORITHM",
	"jwt.access_token_expire_minutes": "ACCESS_TOKEN_EXPIRE_MINUTES",
	"rate_limit.per_minute":           "RATE_LIMIT_PER_MINUTE",
	"cors.allowed_origins":            "ALLOWED_ORIGINS",
	"payment.base_url":                "PAYMENT_GATEWAY_URL",
	"payment.api_key":                 "PAYMENT_GATEWAY_API_KEY",

	"services.backend.url":                 "BACKEND_SERVICE_URL",
	"services.recommendations.url":         "RECOMMENDATION_SERVICE_URL",
	"services.search.url":                  "SEARCH_SERVICE_URL",
	"services.pricing.url":                 "PRICING_SERVICE_URL",
	"services.chat.url":                    "CHATBOT_SERVICE_URL",
	"services.fraud.url":                   "FRAUD_SERVICE_URL",
	"services.forecast.url":                "FORECAST_SERVICE_URL",
	"services.vision.url":                  "VISION_SERVICE_URL",
	"services.backend.auth_secret":         "SERVICE_AUTH_SECRET_BACKEND",
	"services.recommendations.auth_secret": "SERVICE_AUTH_SECRET_RECOMMENDATION",
	"services.search.auth_secret":          "SERVICE_AUTH_SECRET_SEARCH",
	"services.pricing.auth_secret":         "SERVICE_AUTH_SECRET_PRICING",
	"services.chat.auth_secret":            "SERVICE_AUTH_SECRET_CHATBOT",
	"services.fraud.auth_secret":           "SERVICE_AUTH_SECRET_FRAUD",
	"services.forecast.auth_secret":        "SERVICE_AUTH_SECRET_FORECAST",
	"services.vision.auth_secret":          "SERVICE_AUTH_SECRET_VISION",
}

// Load 加载配置文件
// 支持：
// 1. 默认加载config/config.yaml
// 2. 环境变量覆盖（GATEWAY_前缀自动映射 + envBindings显式绑定）
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件可选（全环境变量部署），其他读取错误仍然失败
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	// 环境变量绑定
	v.SetEnvPrefix("GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	// 解析到结构体；未知字段硬错误（拼写错误在启动期暴露）
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults 配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "65s")
	v.SetDefault("server.ingress_timeout", "60s")

	v.SetDefault("database.charset", "utf8mb4")
	v.SetDefault("database.parse_time", true)
	v.SetDefault("database.loc", "UTC")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "1h")

	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", "2s")
	v.SetDefault("redis.read_timeout", "1s")
	v.SetDefault("redis.write_timeout", "1s")

	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.access_token_expire_minutes", 30)

	v.SetDefault("rate_limit.per_minute", 120)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("payment.timeout", "30s")

	v.SetDefault("checkout.fraud_fail_open", true)
	v.SetDefault("checkout.free_shipping_threshold", 10000) // 100.00
	v.SetDefault("checkout.flat_shipping_fee", 1000)        // 10.00

	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.success_threshold", 2)
	v.SetDefault("resilience.window_size", 100)
	v.SetDefault("resilience.open_timeout", "60s")
	v.SetDefault("resilience.max_retries", 3)
	v.SetDefault("resilience.base_delay", "100ms")
	v.SetDefault("resilience.max_delay", "10s")
	v.SetDefault("resilience.exp_base", 2.0)
	v.SetDefault("resilience.jitter", true)
	v.SetDefault("resilience.retry_statuses", []int{408, 429, 500, 502, 503, 504})
	v.SetDefault("resilience.connect_timeout", "5s")
	v.SetDefault("resilience.read_timeout", "30s")
	v.SetDefault("resilience.write_timeout", "10s")
}

// validate 配置校验（启动期失败好过运行期惊喜）
func validate(cfg *Config) error {
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret（JWT_SECRET）未配置")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port非法: %d", cfg.Server.Port)
	}
	if cfg.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate_limit.per_minute必须为正数: %d", cfg.RateLimit.PerMinute)
	}
	if cfg.Resilience.ExpBase < 1 {
		return fmt.Errorf("resilience.exp_base必须≥1: %v", cfg.Resilience.ExpBase)
	}
	return nil
}
