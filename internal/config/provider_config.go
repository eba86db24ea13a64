package config

type ProviderConfig interface {
	GetAuth0Domain() string
	GetAuth0ClientID() string
	GetAuth0ClientSecret() string
	GetAuth0Audience() string
	GetAuth0RedirectPath() string
	GetAuth0OrganizationRedirectPath() string
	GetAuth0Scope() string
	GetAuth0VerifyIDToken() bool
}

var _ ProviderConfig = EnvVars{}

func (e EnvVars) GetAuth0Domain() string       { return e.Auth0Domain }
func (e EnvVars) GetAuth0ClientID() string     { return e.Auth0ClientID }
func (e EnvVars) GetAuth0ClientSecret() string { return e.Auth0ClientSecret }
func (e EnvVars) GetAuth0Audience() string     { return e.Auth0Audience }
func (e EnvVars) GetAuth0RedirectPath() string { return e.Auth0RedirectURL }
func (e EnvVars) GetAuth0Scope() string        { return e.Auth0Scope }
func (e EnvVars) GetAuth0VerifyIDToken() bool  { return e.Auth0VerifyIDToken }

func (e EnvVars) GetAuth0OrganizationRedirectPath() string {
	return e.Auth0OrgRedirectURL
}
