package config

import "strings"

var _ CorsConfig = EnvVars{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

func (e EnvVars) GetAllowedOrigins() AllowedOrigins {
	origins := AllowedOrigins{}
	for _, origin := range strings.Split(e.CorsOrigin, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins[origin] = nullValue{}
		}
	}
	return origins
}

func (EnvVars) GetAllowedMethods() string {
	return "GET, POST, PUT, PATCH, DELETE"
}

func (EnvVars) GetAllowedHeaders() string {
	return "Content-Type, Authorization, X-Tenant-Access-Token"
}
