package config

import "time"

type AppConfig struct {
	DBDriver    string            `yaml:"db_driver" env:"AEGIS_DB_DRIVER" env-default:"sqlite"`
	DBURL       string            `yaml:"db_url" env:"AEGIS_DB_URL"`
	DBPath      string            `yaml:"db_path" env:"AEGIS_DB_PATH" env-default:"data/aegis.db"`
	ListenAddr  string            `yaml:"listen_addr" env:"AEGIS_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	SessionTTL  time.Duration     `yaml:"session_ttl" env:"AEGIS_SESSION_TTL" env-default:"3h"`
	Pepper      string            `yaml:"pepper" env:"AEGIS_PEPPER"`
	AppEnv      string            `yaml:"app_env" env:"AEGIS_APP_ENV"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Incidents   IncidentsConfig   `yaml:"incidents"`
	Missions    MissionsConfig    `yaml:"missions"`
	Profiles    ProfilesConfig    `yaml:"profiles"`
}

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	if c == nil || c.SessionTTL <= 0 {
		return 3 * time.Hour
	}
	return c.SessionTTL
}

type MaintenanceConfig struct {
	Enabled bool `yaml:"enabled" env:"AEGIS_MAINTENANCE_ENABLED" env-default:"true"`
	// Cron spec for the housekeeping run. robfig/cron syntax, descriptors allowed.
	Schedule          string        `yaml:"schedule" env:"AEGIS_MAINTENANCE_SCHEDULE" env-default:"@every 10m"`
	StaleVerification time.Duration `yaml:"stale_verification" env:"AEGIS_MAINTENANCE_STALE_VERIFICATION" env-default:"6h"`
}

type IncidentsConfig struct {
	MaxMediaPerIncident int `yaml:"max_media_per_incident" env:"AEGIS_INCIDENTS_MAX_MEDIA" env-default:"5"`
}

type MissionsConfig struct {
	// Hard cap on tracking points returned by list endpoints.
	TrackingListLimit int `yaml:"tracking_list_limit" env:"AEGIS_MISSIONS_TRACKING_LIST_LIMIT" env-default:"500"`
}

type ProfilesConfig struct {
	MaxContactsPerProfile int `yaml:"max_contacts_per_profile" env:"AEGIS_PROFILES_MAX_CONTACTS" env-default:"5"`
}
