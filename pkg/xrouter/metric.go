package xrouter

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
)

const meterName = "mgmtbroker/xrouter"

// 统计快照
type Stats struct {
	Submitted   int64 // 进入队列
	Delivered   int64 // 目的地已接收
	Rejected    int64 // 合成NAK
	NakFailures int64 // NAK构造失败, 节点直接丢弃
	Discarded   int64 // 无响应丢弃(含关机清空)
	Abandoned   int64 // 发起方已放弃, 迟到的完成被吸收
	Completed   int64 // 正常完成
}

type counter struct {
	local atomic.Int64
	inst  metric.Int64Counter
}

func (c *counter) inc(ctx context.Context) {
	c.local.Inc()
	c.inst.Add(ctx, 1)
}

type routerMetric struct {
	submitted   counter
	delivered   counter
	rejected    counter
	nakFailures counter
	discarded   counter
	abandoned   counter
	completed   counter
}

func newRouterMetric(meter metric.Meter) (*routerMetric, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	m := &routerMetric{}
	instruments := []struct {
		c    *counter
		name string
		desc string
	}{
		{&m.submitted, "broker.router.submitted", "Operation nodes accepted into the router queue"},
		{&m.delivered, "broker.router.delivered", "Operation nodes accepted by their destination"},
		{&m.rejected, "broker.router.nak", "Operation nodes answered with a synthesized NAK"},
		{&m.nakFailures, "broker.router.nak_failures", "NAK replies that could not be built; node dropped"},
		{&m.discarded, "broker.router.discarded", "Operation nodes dropped without a response"},
		{&m.abandoned, "broker.router.abandoned", "Late completions of operations abandoned by their issuer"},
		{&m.completed, "broker.router.completed", "Operation nodes completed with a response"},
	}
	for _, i := range instruments {
		inst, err := meter.Int64Counter(i.name, metric.WithDescription(i.desc))
		if err != nil {
			return nil, err
		}
		i.c.inst = inst
	}
	return m, nil
}

func (m *routerMetric) snapshot() Stats {
	return Stats{
		Submitted:   m.submitted.local.Load(),
		Delivered:   m.delivered.local.Load(),
		Rejected:    m.rejected.local.Load(),
		NakFailures: m.nakFailures.local.Load(),
		Discarded:   m.discarded.local.Load(),
		Abandoned:   m.abandoned.local.Load(),
		Completed:   m.completed.local.Load(),
	}
}
