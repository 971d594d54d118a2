package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Task       TaskConfig       `mapstructure:"task"`
	Log        LogConfig        `mapstructure:"log"`
	Capability CapabilityConfig `mapstructure:"capability"`
	Bank       BankConfig       `mapstructure:"bank"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"` // 关闭时事件日志只保留在内存
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ChainConfig 单链配置，用于充值事件监听和链上权限合约
type ChainConfig struct {
	Enabled   bool                      `mapstructure:"enabled"`
	ChainType string                    `mapstructure:"chain_type"` // 链类型 (ethereum, polygon, etc.)
	ChainId   int64                     `mapstructure:"chain_id"`
	RpcUrl    string                    `mapstructure:"rpc_url"`
	Contracts map[string]ContractConfig `mapstructure:"contracts"` // 该链上的合约配置
	BatchSize int64                     `mapstructure:"batch_size"`
	PollEvery int                       `mapstructure:"poll_every"` // 秒
}

// ContractConfig 单个合约配置
type ContractConfig struct {
	Address  string `mapstructure:"address"`
	ABIPath  string `mapstructure:"abi_path"`  // 为空时使用内置ABI
	Enabled  bool   `mapstructure:"enabled"`   // 是否启用此合约
	BlockNum int64  `mapstructure:"block_num"` // 合约部署区块号
}

type TaskConfig struct {
	AuditInterval int `mapstructure:"audit_interval"` // 秒
	FlushInterval int `mapstructure:"flush_interval"` // 秒
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error, fatal
	Output string `mapstructure:"output"` // 输出目标: stdout, stderr, file
	File   string `mapstructure:"file"`   // 日志文件路径（当output为file时使用）
}

// CapabilityConfig 权限网关配置
type CapabilityConfig struct {
	Mode          string              `mapstructure:"mode"`           // static, hats
	RegistrarRole string              `mapstructure:"registrar_role"` // 为空表示任何人都可以注册项目
	HatsContract  string              `mapstructure:"hats_contract"`
	PrivateKey    string              `mapstructure:"private_key"` // transferHat 交易签名
	Wearers       map[string][]string `mapstructure:"wearers"`     // static 模式: 角色 -> 佩戴者
	Eligible      map[string][]string `mapstructure:"eligible"`    // static 模式: 角色 -> 有资格者
}

// BankConfig 账户余额账本配置
type BankConfig struct {
	Faucet bool `mapstructure:"faucet"` // 是否开放运维充值接口
}

// GetLevel 实现 logger.LogConfig 接口
func (l LogConfig) GetLevel() string {
	return l.Level
}

// GetOutput 实现 logger.LogConfig 接口
func (l LogConfig) GetOutput() string {
	return l.Output
}

// GetFile 实现 logger.LogConfig 接口
func (l LogConfig) GetFile() string {
	return l.File
}

// Load 从默认路径加载配置
func Load() (*Config, error) {
	return LoadFrom(viper.New(), "")
}

// LoadFrom 使用指定的 viper 实例加载配置，file 为空时按默认路径查找 config.yaml
func LoadFrom(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/esv")
	}

	setDefaults(v)

	// 自动读取环境变量，例如 ESV_SERVER_PORT
	v.SetEnvPrefix("esv")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "esv")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("chain.enabled", false)
	v.SetDefault("chain.chain_type", "ethereum")
	v.SetDefault("chain.batch_size", 500)
	v.SetDefault("chain.poll_every", 60)
	v.SetDefault("task.audit_interval", 60)
	v.SetDefault("task.flush_interval", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("capability.mode", "static")
	v.SetDefault("bank.faucet", false)
}
