package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load 按优先级加载：默认值 -> configs/config.yaml -> configs/config.<APP_ENV>.yaml -> 环境变量
func Load() (*Config, error) {
	return LoadFrom("configs")
}

// LoadFrom 从指定目录加载配置，目录中没有配置文件时只使用默认值
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if err := loadConfigFile(v, dir+"/config.yaml"); err != nil {
		return nil, err
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		if err := loadConfigFile(v, fmt.Sprintf("%s/config.%s.yaml", dir, env)); err != nil {
			return nil, err
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// 与原有 ARK_API_KEY / ARK_MOCK 环境变量保持兼容
	if cfg.Ark.APIKey == "" {
		cfg.Ark.APIKey = os.Getenv("ARK_API_KEY")
	}
	if m := strings.ToLower(os.Getenv("ARK_MOCK")); m == "1" || m == "true" {
		cfg.Ark.Mock = true
	}
	return &cfg, nil
}

func loadConfigFile(v *viper.Viper, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := v.MergeConfig(strings.NewReader(expandEnv(string(content)))); err != nil {
		return fmt.Errorf("failed to merge config %s: %w", path, err)
	}
	return nil
}

var envPattern = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// expandEnv 替换 ${VAR} 和 ${VAR:default}，未定义且无默认值的变量替换为空串
func expandEnv(s string) string {
	return envPattern.ReplaceAllStringFunc(s, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		return sub[3]
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	// SSE 与 PDF 下载可能持续较长时间
	v.SetDefault("server.write_timeout", "0s")

	v.SetDefault("ark.base_url", "https://ark.cn-beijing.volces.com")
	v.SetDefault("ark.mock", false)
	v.SetDefault("ark.timeout", "90s")
	v.SetDefault("ark.chat_model", "ep-20250220181854-c8s82")
	v.SetDefault("ark.image_model", "ep-20251124201143-rwjnq")
	v.SetDefault("ark.image_size", "1728x2304")

	v.SetDefault("book.page_count", 5)
	v.SetDefault("book.max_description_words", 30)

	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.cleanup_interval", "10m")

	v.SetDefault("storage.minio.enabled", false)
	v.SetDefault("storage.minio.bucket", "coloring-books")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}
