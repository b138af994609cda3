package xenv

import (
	"time"

	"github.com/caarlos0/env/v8"
	"github.com/pkg/errors"
)

const (
	maxWorkersLimit   = 5000 // 单service最大worker数
	defaultWorkers    = 5
	defaultQueueLimit = 1024
)

// 进程配置, 全部来自环境变量(前缀BROKER_)
type Config struct {
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogProd   bool   `env:"LOG_PROD"`
	LogStdout bool   `env:"LOG_STDOUT" envDefault:"true"`

	Workers        int           `env:"SERVICE_WORKERS" envDefault:"5"`
	QueueSize      int           `env:"SERVICE_QUEUE_SIZE" envDefault:"1024"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`

	Network  string `env:"GATEWAY_NETWORK" envDefault:"tcp"` // tcp|kcp|ws
	Addr     string `env:"GATEWAY_ADDR" envDefault:":5988"`
	WSPath   string `env:"GATEWAY_WS_PATH" envDefault:"/broker"`
	Manifest string `env:"MODULE_MANIFEST"`
}

// 加载broker配置, 越界值回退默认
func Load() (*Config, error) {
	conf := &Config{}
	if err := env.ParseWithOptions(conf, env.Options{Prefix: "BROKER_"}); err != nil {
		return nil, errors.Wrap(err, "parse env config")
	}
	conf.normalize()
	return conf, nil
}

func (conf *Config) normalize() {
	if conf.Workers < 1 || conf.Workers > maxWorkersLimit {
		conf.Workers = maxWorkersLimit
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = defaultQueueLimit
	}
	if conf.RequestTimeout <= 0 {
		conf.RequestTimeout = 30 * time.Second
	}
}

// 默认配置(测试/嵌入使用)
func Default() *Config {
	return &Config{
		LogLevel:       "info",
		LogStdout:      true,
		Workers:        defaultWorkers,
		QueueSize:      defaultQueueLimit,
		RequestTimeout: 30 * time.Second,
		Network:        "tcp",
		Addr:           ":5988",
		WSPath:         "/broker",
	}
}
