package main

import (
	"context"
	"os"
	"time"

	"mgmtbroker/cmd/brokerd/internal/providers"
	"mgmtbroker/pkg/xbroker"
	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xenv"
	"mgmtbroker/pkg/xgateway"
	"mgmtbroker/pkg/xlog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var flags struct {
	logLevel string
	workers  int
	network  string
	addr     string
	path     string
	manifest string
	timeout  time.Duration
}

var rootCmd = &cobra.Command{
	Use:          "brokerd",
	Short:        "Management object broker daemon",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	fs := rootCmd.Flags()
	fs.StringVar(&flags.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	fs.IntVar(&flags.workers, "workers", 5, "control service worker count")
	fs.StringVar(&flags.network, "network", "tcp", "gateway network (tcp|kcp|ws)")
	fs.StringVar(&flags.addr, "addr", ":5988", "gateway listen addr")
	fs.StringVar(&flags.path, "path", "/broker", "websocket path")
	fs.StringVar(&flags.manifest, "manifest", "", "module manifest (yaml)")
	fs.DurationVar(&flags.timeout, "timeout", 30*time.Second, "blocking request timeout")
}

// 命令行参数覆盖环境变量
func loadConfig(cmd *cobra.Command) (*xenv.Config, error) {
	conf, err := xenv.Load()
	if err != nil {
		return nil, err
	}
	fs := cmd.Flags()
	if fs.Changed("log-level") {
		conf.LogLevel = flags.logLevel
	}
	if fs.Changed("workers") {
		conf.Workers = flags.workers
	}
	if fs.Changed("network") {
		conf.Network = flags.network
	}
	if fs.Changed("addr") {
		conf.Addr = flags.addr
	}
	if fs.Changed("path") {
		conf.WSPath = flags.path
	}
	if fs.Changed("manifest") {
		conf.Manifest = flags.manifest
	}
	if fs.Changed("timeout") {
		conf.RequestTimeout = flags.timeout
	}
	return conf, nil
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	defer xcommon.Recover(ctx)

	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := xlog.Init(xlog.Config{Level: conf.LogLevel, Prod: conf.LogProd, Stdout: conf.LogStdout}); err != nil {
		return errors.Wrap(err, "init log")
	}
	defer xlog.Sync()

	var manifest *xenv.Manifest
	if conf.Manifest != "" {
		if manifest, err = xenv.LoadManifest(conf.Manifest); err != nil {
			return err
		}
	}

	broker, err := xbroker.Init(ctx, xbroker.Args{Conf: conf, Meter: otel.GetMeterProvider().Meter("mgmtbroker")})
	if err != nil {
		return err
	}

	stopCh := make(chan struct{})
	if _, err := providers.Register(ctx, broker, providers.Args{
		Manifest: manifest,
		Stop:     func() { close(stopCh) },
	}); err != nil {
		return shutdown(ctx, broker, nil, err)
	}

	gw, err := xgateway.Serve(ctx, xgateway.Args{Network: conf.Network, Addr: conf.Addr, Path: conf.WSPath, Broker: broker})
	if err != nil {
		return shutdown(ctx, broker, nil, err)
	}
	xlog.Get(ctx).Info("Broker serving.", zap.String("network", conf.Network), zap.String("addr", gw.Addr()))

	xcommon.UntilSignal(ctx, stopCh)
	return shutdown(ctx, broker, gw, nil)
}

// 关闭顺序: 网关 => broker, 最后打印统计
func shutdown(ctx context.Context, broker *xbroker.Broker, gw *xgateway.Gateway, cause error) error {
	if gw != nil {
		gw.Close(ctx)
	}
	if err := broker.Shutdown(ctx); err != nil {
		xlog.Get(ctx).Error("Broker shutdown failed.", zap.Error(err))
		if cause == nil {
			cause = err
		}
	}

	stats := broker.Stats()
	values := [][]string{{
		xcommon.ToString(stats.Submitted),
		xcommon.ToString(stats.Delivered),
		xcommon.ToString(stats.Rejected),
		xcommon.ToString(stats.NakFailures),
		xcommon.ToString(stats.Discarded),
		xcommon.ToString(stats.Abandoned),
		xcommon.ToString(stats.Completed),
		"0",
	}}
	if gw != nil {
		values[0][7] = xcommon.ToString(gw.Served())
	}
	xcommon.PrintTable(ctx, os.Stdout,
		[]string{"submitted", "delivered", "rejected", "nak_failures", "discarded", "abandoned", "completed", "served"},
		values)
	return cause
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
