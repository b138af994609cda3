package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xgateway"
	"mgmtbroker/pkg/xlog"
	"mgmtbroker/pkg/xmsg"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	network   = flag.String("network", "tcp", "tcp|kcp|ws")
	addr      = flag.String("addr", "127.0.0.1:5988", "broker gateway addr")
	path      = flag.String("path", "/broker", "websocket path")
	module    = flag.String("module", xmsg.ModuleNameConfigProvider, "target module")
	op        = flag.String("op", "enumerate", "get|enumerate|create|modify|delete|invoke")
	namespace = flag.String("ns", "", "namespace")
	class     = flag.String("class", "", "class name")
	method    = flag.String("method", "", "invoke method")
	args      = flag.String("args", "", "k1=v1,k2=v2")
	broadcast = flag.String("broadcast", "", "stop|subscribed, send a broadcast instead of a module request")
	timeout   = flag.Duration("timeout", 10*time.Second, "request timeout")
)

func buildRequest() (xmsg.Request, error) {
	switch *broadcast {
	case "":
	case "stop":
		return xmsg.NewStopAllModules(), nil
	case "subscribed":
		return xmsg.NewSubscriptionInitComplete(), nil
	default:
		return nil, errors.Errorf("broadcast[%v] invalid", *broadcast)
	}

	operation, ok := xmsg.ParseOperation(*op)
	if !ok {
		return nil, errors.Errorf("op[%v] invalid", *op)
	}
	req := xmsg.NewModuleRequest(*module, operation)
	req.Namespace = *namespace
	req.Class = *class
	req.Method = *method
	for _, kv := range strings.Split(*args, ",") {
		if kv == "" {
			continue
		}
		k, v, found := strings.Cut(kv, "=")
		if !found {
			return nil, errors.Errorf("arg[%v] invalid", kv)
		}
		req.Args[k] = v
	}
	return req, nil
}

func main() {
	flag.Parse()
	ctx := context.Background()
	defer xcommon.Recover(ctx)

	req, err := buildRequest()
	if err != nil {
		xlog.Get(ctx).Error("Build request failed.", zap.Error(err))
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	cli, err := xgateway.Dial(ctx, xgateway.ClientArgs{Network: *network, Addr: *addr, Path: *path})
	if err != nil {
		xlog.Get(ctx).Error("Dial broker failed.", zap.Error(err))
		os.Exit(1)
	}
	defer cli.Close(ctx)

	reply, err := cli.Request(ctx, req)
	if err != nil {
		xlog.Get(ctx).Error("Request failed.", zap.Error(err))
		os.Exit(1)
	}
	errText := ""
	if reply.Err != nil {
		errText = reply.Err.Error()
	}
	xcommon.PrintTable(ctx, os.Stdout, []string{"request", "code", "payload", "error"},
		[][]string{{reply.Request.String(), reply.Code.String(), fmt.Sprintf("%v", reply.Payload), errText}})
	if reply.Code != xmsg.CodeOK {
		os.Exit(1)
	}
}
