package config

const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
)

type StoreConfig interface {
	GetStoreDriver() string
	GetDataFolder() string
	GetGlobalStoreName() string
	GetDSN() string
	GetTenantWarmup() bool
}

var _ StoreConfig = EnvVars{}

func (e EnvVars) GetStoreDriver() string {
	if e.StoreDriver == "" {
		return StoreDriverSQLite
	}
	return e.StoreDriver
}

func (e EnvVars) GetDataFolder() string {
	return e.DataFolder
}

func (e EnvVars) GetGlobalStoreName() string {
	if e.GlobalStore == "" {
		return "global"
	}
	return e.GlobalStore
}

func (e EnvVars) GetDSN() string {
	return e.DSN
}

func (e EnvVars) GetTenantWarmup() bool {
	return e.TenantWarmup
}
