package config

// TransportConfig 组播收发配置
type TransportConfig struct {
	// Interfaces 参与收发的网卡名，为空表示所有支持组播的网卡
	Interfaces []string `json:"interfaces,omitempty"`

	// EnableIPv4 是否使用 224.0.0.251
	EnableIPv4 bool `json:"enable_ipv4"`

	// EnableIPv6 是否使用 ff02::fb
	EnableIPv6 bool `json:"enable_ipv6"`

	// Port 组播端口
	Port int `json:"port"`

	// MulticastTTL 组播跳数
	MulticastTTL int `json:"multicast_ttl"`

	// MaxPacketSize 收发包大小上限，超长的出站消息按记录拆分
	MaxPacketSize int `json:"max_packet_size"`

	// ReceiveQueue 入站包队列长度，满时丢包
	ReceiveQueue int `json:"receive_queue"`
}

// DefaultTransportConfig 返回默认收发配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		EnableIPv4:    true,
		EnableIPv6:    true,
		Port:          5353,
		MulticastTTL:  255,
		MaxPacketSize: 9000,
		ReceiveQueue:  256,
	}
}

// Validate 校验收发配置
func (c TransportConfig) Validate() error {
	if !c.EnableIPv4 && !c.EnableIPv6 {
		return invalid("transport", "at least one of enable_ipv4 and enable_ipv6 must be set")
	}
	if c.Port < 0 || c.Port > 65535 {
		return invalid("transport.port", "out of range: %d", c.Port)
	}
	if c.MulticastTTL < 1 || c.MulticastTTL > 255 {
		return invalid("transport.multicast_ttl", "out of range: %d", c.MulticastTTL)
	}
	if c.MaxPacketSize < 512 {
		return invalid("transport.max_packet_size", "must be at least 512")
	}
	if c.ReceiveQueue < 1 {
		return invalid("transport.receive_queue", "must be at least 1")
	}
	return nil
}
