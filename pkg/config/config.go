package config

import (
	"context"
	"errors"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"marketsim.com/pkg/logger"
)

// Load 读取配置到 T。
// 约定：path 为空时找 ./config/{service}.yaml 或 ./{service}.yaml；
// 环境变量 {SERVICE}_A_B 覆盖 a.b，例如 MARKETSIM_MARKET_MIN_SPREAD_PERCENT。
// 找不到配置文件时只用 defaults + 环境变量。
func Load[T any](service, path string, defaults map[string]any) (*T, *viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(service)
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(strings.ToUpper(service))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 显式指定的文件必须存在
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, nil, err
		}
	}

	out := new(T)
	if err := v.Unmarshal(out); err != nil {
		return nil, nil, err
	}
	return out, v, nil
}

// Watch 监听配置文件变更，每次变更重新解出一份新的 T 交给 onChange；
// 不原地修改旧配置，避免和读方并发。
func Watch[T any](v *viper.Viper, service string, onChange func(*T)) {
	if v.ConfigFileUsed() == "" {
		return
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		ctx := context.Background()
		logger.Info(ctx, "config file changed", zap.String("service", service), zap.String("file", e.Name))

		next := new(T)
		if err := v.Unmarshal(next); err != nil {
			logger.Error(ctx, "reload config error", zap.String("service", service), zap.Error(err))
			return
		}
		onChange(next)
	})
	v.WatchConfig()
}
