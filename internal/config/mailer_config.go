package config

import "time"

type MailerConfig interface {
	GetMailerHost() string
	GetMailerPort() string
	GetMailerUser() string
	GetMailerPassword() string
	GetMailerFrom() string
}

type OutboxConfig interface {
	GetOutboxPath() string
	GetOutboxPollInterval() time.Duration
	GetOutboxMaxAttempts() int
}

var (
	_ MailerConfig = EnvVars{}
	_ OutboxConfig = EnvVars{}
)

func (e EnvVars) GetMailerHost() string     { return e.MailerHost }
func (e EnvVars) GetMailerPort() string     { return e.MailerPort }
func (e EnvVars) GetMailerUser() string     { return e.MailerUser }
func (e EnvVars) GetMailerPassword() string { return e.MailerPassword }

func (e EnvVars) GetMailerFrom() string {
	if e.MailerFrom == "" {
		return e.MailerUser
	}
	return e.MailerFrom
}

func (e EnvVars) GetOutboxPath() string {
	return e.OutboxPath
}

func (e EnvVars) GetOutboxPollInterval() time.Duration {
	if e.OutboxPollSeconds <= 0 {
		return 2 * time.Second
	}
	return time.Duration(e.OutboxPollSeconds) * time.Second
}

func (e EnvVars) GetOutboxMaxAttempts() int {
	if e.OutboxMaxAttempts <= 0 {
		return 10
	}
	return e.OutboxMaxAttempts
}
