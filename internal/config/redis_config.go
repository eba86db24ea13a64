package config

import "net"

type RedisConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
}

var _ RedisConfig = EnvVars{}

func (e EnvVars) GetRedisAddr() string {
	return net.JoinHostPort(e.RedisHost, e.RedisPort)
}

func (e EnvVars) GetRedisPassword() string {
	return e.RedisPassword
}
