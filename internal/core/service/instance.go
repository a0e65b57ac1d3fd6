package service

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/dep2p/go-mdns/pkg/lib/rr"
	"github.com/dep2p/go-mdns/pkg/types"
)

const (
	// DefaultDomain 默认域
	DefaultDomain = "local."
	// DefaultTTL PTR/TXT 记录的默认 TTL
	DefaultTTL uint32 = 4500
	// DefaultHostTTL SRV 记录的默认 TTL
	DefaultHostTTL uint32 = 120

	servicesEnum = "_services._dns-sd._udp"
)

// Instance 服务实例描述
type Instance struct {
	// Name 实例名，可以包含空格与点，如 "Office Printer"
	Name string
	// Service 服务类型，如 "_ipp._tcp"
	Service string
	// Domain 为空时使用 local.
	Domain string
	// Host SRV 目标主机名
	Host string
	Port uint16
	Text []string
	// Subtypes 子类型，如 "_printer"
	Subtypes []string

	// TTL 为 0 时使用默认值
	TTL     uint32
	HostTTL uint32

	Interface types.InterfaceID
}

func (i Instance) domain() string {
	if i.Domain == "" {
		return DefaultDomain
	}
	return i.Domain
}

func (i Instance) ttl() uint32 {
	if i.TTL == 0 {
		return DefaultTTL
	}
	return i.TTL
}

func (i Instance) hostTTL() uint32 {
	if i.HostTTL == 0 {
		return DefaultHostTTL
	}
	return i.HostTTL
}

// Validate 校验实例描述
func (i Instance) Validate() error {
	switch {
	case i.Name == "":
		return fmt.Errorf("%w: empty instance name", ErrInvalidInstance)
	case len(i.Name) > rr.MaxLabelLength:
		return fmt.Errorf("%w: instance name longer than %d bytes", ErrInvalidInstance, rr.MaxLabelLength)
	case !strings.HasPrefix(i.Service, "_"):
		return fmt.Errorf("%w: service type %q", ErrInvalidInstance, i.Service)
	case i.Host == "":
		return fmt.Errorf("%w: empty host", ErrInvalidInstance)
	}
	return nil
}

// ServiceName 返回 "<service>.<domain>"
func ServiceName(service, domain string) string {
	if domain == "" {
		domain = DefaultDomain
	}
	return strings.TrimSuffix(service, ".") + "." + strings.TrimSuffix(domain, ".") + "."
}

// InstanceName 返回 "<escaped label>.<service>.<domain>"
func InstanceName(label, service, domain string) string {
	return EscapeLabel(label) + "." + ServiceName(service, domain)
}

// EscapeLabel 转义标签中的点与反斜杠
func EscapeLabel(label string) string {
	r := strings.NewReplacer(`\`, `\\`, `.`, `\.`)
	return r.Replace(label)
}

// EnumerationName 服务类型枚举名 "_services._dns-sd._udp.<domain>"
func EnumerationName(domain string) string {
	return ServiceName(servicesEnum, domain)
}

// 记录组内 SRV 与 TXT 的下标
const (
	srvIndex = 0
	txtIndex = 1
)

// records 以给定实例标签生成整组记录：SRV、TXT，随后是共享的 PTR
func (i Instance) records(label string) ([]rr.Record, []types.RecordPolicy, error) {
	service := ServiceName(i.Service, i.domain())
	instance := InstanceName(label, i.Service, i.domain())

	var (
		recs     []rr.Record
		policies []types.RecordPolicy
		failed   error
	)
	collect := func(p types.RecordPolicy) func(rr.Record, error) {
		return func(r rr.Record, err error) {
			if err != nil {
				failed = multierr.Append(failed, err)
				return
			}
			recs = append(recs, r)
			policies = append(policies, p)
		}
	}
	shared, unique := collect(types.PolicyShared), collect(types.PolicyUnique)

	unique(rr.NewSRV(instance, 0, 0, i.Port, i.Host, i.hostTTL()))
	unique(rr.NewTXT(instance, i.ttl(), i.Text...))
	shared(rr.NewPTR(service, instance, i.ttl()))
	for _, sub := range i.Subtypes {
		shared(rr.NewPTR(sub+"._sub."+service, instance, i.ttl()))
	}

	if failed != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidInstance, failed)
	}
	return recs, policies, nil
}
