package rabbitmq

import (
	"net"
	"net/url"
	"strings"
)

// Options 连接参数
type Options struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	VHost    string `json:"vhost"`
}

func DefaultOptions() Options {
	return Options{
		Host:     "localhost",
		Port:     "5672",
		Username: "guest",
		Password: "guest",
		VHost:    "/",
	}
}

// BuildURL 默认 vhost "/" 写成空路径
func (o Options) BuildURL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(o.Username, o.Password),
		Host:   net.JoinHostPort(o.Host, o.Port),
		Path:   "/" + strings.TrimPrefix(o.VHost, "/"),
	}
	return u.String()
}

// PublisherOptions RoutingKey 非空时覆盖发布时传入的 key
type PublisherOptions struct {
	Exchange     string `json:"exchange"`
	ExchangeType string `json:"exchange_type"`
	RoutingKey   string `json:"routing_key"`
	Mandatory    bool   `json:"mandatory"`
	Confirm      bool   `json:"confirm"` // 等 broker ack
	AppID        string `json:"app_id"`
}

func DefaultPublisherOptions() PublisherOptions {
	return PublisherOptions{
		Exchange:     "parlor.outcomes",
		ExchangeType: "topic",
		Confirm:      true,
		AppID:        "parlor",
	}
}
