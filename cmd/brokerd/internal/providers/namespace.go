package providers

import (
	"context"
	"strings"
	"sync"

	"mgmtbroker/pkg/xmsg"
	"mgmtbroker/pkg/xregistry"

	"github.com/pkg/errors"
)

var defaultNamespaces = []string{"root", "root/cimv2", "root/interop"}

// 命名空间列表, 清单properties的key即命名空间
type NamespaceProvider struct {
	lifecycle
	mu         sync.RWMutex
	namespaces map[string]struct{}
}

var namespaceTable = xregistry.NewTable[*NamespaceProvider]().
	Register(xmsg.OpEnumerate, xregistry.HandleWarp((*NamespaceProvider).enumerate)).
	Register(xmsg.OpCreate, xregistry.HandleWarp((*NamespaceProvider).create)).
	Register(xmsg.OpDelete, xregistry.HandleWarp((*NamespaceProvider).delete)).
	OnBroadcast(func(ctx context.Context, p *NamespaceProvider, t xmsg.MsgType) { p.onBroadcast(ctx, t) })

func NewNamespaceProvider(name string, props map[string]string) *NamespaceProvider {
	p := &NamespaceProvider{namespaces: make(map[string]struct{})}
	p.name = name
	if len(props) == 0 {
		for _, ns := range defaultNamespaces {
			p.namespaces[ns] = struct{}{}
		}
	}
	for ns := range props {
		p.namespaces[normalizeNamespace(ns)] = struct{}{}
	}
	return p
}

func normalizeNamespace(ns string) string {
	return strings.Trim(strings.TrimSpace(ns), "/")
}

func (p *NamespaceProvider) Namespaces() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedKeys(p.namespaces)
}

func (p *NamespaceProvider) enumerate(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	names := p.Namespaces()
	list := make([]interface{}, 0, len(names))
	for _, ns := range names {
		list = append(list, ns)
	}
	return xregistry.Reply(req, xmsg.CodeOK, list)
}

func (p *NamespaceProvider) create(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	ns := normalizeNamespace(req.Namespace)
	if ns == "" {
		return xregistry.Fail(req, errors.Wrap(ErrInvalidArg, "missing namespace"))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.namespaces[ns]; ok {
		return xregistry.Fail(req, errors.Wrapf(ErrAlreadyExists, "namespace[%v]", ns))
	}
	// 父命名空间必须存在
	if i := strings.LastIndex(ns, "/"); i > 0 {
		if _, ok := p.namespaces[ns[:i]]; !ok {
			return xregistry.Fail(req, errors.Wrapf(ErrNotFound, "parent namespace[%v]", ns[:i]))
		}
	}
	p.namespaces[ns] = struct{}{}
	return xregistry.Reply(req, xmsg.CodeOK, nil)
}

func (p *NamespaceProvider) delete(ctx context.Context, req *xmsg.ModuleRequest) *xmsg.Reply {
	ns := normalizeNamespace(req.Namespace)
	if ns == "" {
		return xregistry.Fail(req, errors.Wrap(ErrInvalidArg, "missing namespace"))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.namespaces[ns]; !ok {
		return xregistry.Fail(req, errors.Wrapf(ErrNotFound, "namespace[%v]", ns))
	}
	for other := range p.namespaces {
		if strings.HasPrefix(other, ns+"/") {
			return xregistry.Fail(req, errors.Wrapf(ErrInvalidArg, "namespace[%v] has child[%v]", ns, other))
		}
	}
	delete(p.namespaces, ns)
	return xregistry.Reply(req, xmsg.CodeOK, nil)
}
