package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀：ZV_CONTAINER_COMPRESSION 对应 container.compression
const EnvPrefix = "ZV"

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 默认值
	setDefaults()

	// 2. 搜索路径：当前目录 > ./.zv > ~/.zv
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(".zv")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".zv"))
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 3. 环境变量，嵌套 key 的 "." 映射为 "_"
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 4. 读取配置文件，找不到文件不算错
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}
	return nil
}

// Used 返回实际使用的配置文件，没有则为空
func Used() string { return viper.ConfigFileUsed() }

func setDefaults() {
	// 暂存区
	viper.SetDefault("staging.backend", "memory")
	viper.SetDefault("staging.dir", os.TempDir())

	// 容器
	viper.SetDefault("container.compression", "")
	viper.SetDefault("verify.workers", runtime.NumCPU())

	// block 服务
	viper.SetDefault("server.addr", ":8080")

	// 日志
	viper.SetDefault("log.level", "info")

	// 外部存储
	viper.SetDefault("s3.region", "us-east-1")
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", "10m")
	viper.SetDefault("cache.prefix", "zv:chunk:")
}
