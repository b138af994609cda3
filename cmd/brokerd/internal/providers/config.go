package providers

import (
	"context"
	"sort"
	"sync"

	"mgmtbroker/pkg/xcommon"
	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xregistry"

	"github.com/pkg/errors"
)

const (
	argName  = "name"
	argValue = "value"
)

// 内存属性表
type ConfigProvider struct {
	lifecycle
	mu    sync.RWMutex
	props map[string]string
}

var configTable = xregistry.NewTable[*ConfigProvider]().
	Register(xmsg.OpGet, xregistry.HandleWarp((*ConfigProvider).get)).
	Register(xmsg.OpEnumerate, xregistry.HandleWarp((*ConfigProvider).enumerate)).
	Register(xmsg.OpCreate, xregistry.HandleWarp((*ConfigProvider).create)).
	Register(xmsg.OpModify, xregistry.HandleWarp((*ConfigProvider).modify)).
	Register(xmsg.OpDelete, xregistry.HandleWarp((*ConfigProvider).delete)).
	OnBroadcast(func(ctx context.Context, p *ConfigProvider, t xmsg.MsgType) { p.onBroadcast(ctx, t) })

func NewConfigProvider(name string, props map[string]string) *ConfigProvider {
	p := &ConfigProvider{props: make(map[string]string, len(props))}
	p.name = name
	for k, v := range props {
		p.props[k] = v
	}
	return p
}

func (p *ConfigProvider) Property(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.props[name]
	return v, ok
}

// 请求中的name/value参数
func nameValue(req *xmsg.ModuleRequest, needValue bool) (string, string, error) {
	name := req.StringArg(argName)
	if name == "" {
		return "", "", errors.Wrap(ErrInvalidArg, "missing name")
	}
	raw, ok := req.Arg(argValue)
	if needValue && !ok {
		return "", "", errors.Wrapf(ErrInvalidArg, "property[%v] missing value", name)
	}
	value := ""
	if ok {
		if s, isStr := raw.(string); isStr {
			value = s
		} else {
			value = xcommon.ToString(raw)
		}
	}
	return name, value, nil
}

func (p *ConfigProvider) get(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	name, _, err := nameValue(req, false)
	if err != nil {
		return xregistry.Fail(req, err)
	}
	v, ok := p.Property(name)
	if !ok {
		return xregistry.Fail(req, errors.Wrapf(ErrNotFound, "property[%v]", name))
	}
	return xregistry.Reply(req, xmsg.CodeOK, v)
}

func (p *ConfigProvider) enumerate(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	p.mu.RLock()
	defer p.mu.RUnlock()
	props := make(map[string]interface{}, len(p.props))
	for k, v := range p.props {
		props[k] = v
	}
	return xregistry.Reply(req, xmsg.CodeOK, props)
}

func (p *ConfigProvider) create(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	name, value, err := nameValue(req, true)
	if err != nil {
		return xregistry.Fail(req, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.props[name]; ok {
		return xregistry.Fail(req, errors.Wrapf(ErrAlreadyExists, "property[%v]", name))
	}
	p.props[name] = value
	return xregistry.Reply(req, xmsg.CodeOK, nil)
}

func (p *ConfigProvider) modify(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	name, value, err := nameValue(req, true)
	if err != nil {
		return xregistry.Fail(req, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	old, ok := p.props[name]
	if !ok {
		return xregistry.Fail(req, errors.Wrapf(ErrNotFound, "property[%v]", name))
	}
	p.props[name] = value
	return xregistry.Reply(req, xmsg.CodeOK, old)
}

func (p *ConfigProvider) delete(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	name, _, err := nameValue(req, false)
	if err != nil {
		return xregistry.Fail(req, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.props[name]; !ok {
		return xregistry.Fail(req, errors.Wrapf(ErrNotFound, "property[%v]", name))
	}
	delete(p.props, name)
	return xregistry.Reply(req, xmsg.CodeOK, nil)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
