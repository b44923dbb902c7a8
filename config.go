package transitlake

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Subscription types accepted in the MQTT config.
const (
	FeedTypeServiceAlerts    = "gtfsrt-service-alerts"
	FeedTypeTripUpdates      = "gtfsrt-trip-updates"
	FeedTypeVehiclePositions = "gtfsrt-vehicle-positions"
)

type Config struct {
	App      AppConfig      `yaml:"app"`
	Caching  CachingConfig  `yaml:"caching"`
	Matching MatchingConfig `yaml:"matching"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
}

type AppConfig struct {
	CachingEnabled    bool          `yaml:"caching_enabled"`
	MonitorEnabled    bool          `yaml:"monitor_enabled"`
	CORSEnabled       bool          `yaml:"cors_enabled"`
	MQTTEnabled       bool          `yaml:"mqtt_enabled"`
	DataReviewSeconds int           `yaml:"data_review_seconds"`
	Timezone          string        `yaml:"timezone"`
	Language          string        `yaml:"language"`
	Routing           RoutingConfig `yaml:"routing"`
}

type RoutingConfig struct {
	ServiceAlerts    string `yaml:"service_alerts_endpoint"`
	TripUpdates      string `yaml:"trip_updates_endpoint"`
	VehiclePositions string `yaml:"vehicle_positions_endpoint"`
	Monitor          string `yaml:"monitor_endpoint"`
}

type CachingConfig struct {
	ServerEndpoint             string `yaml:"caching_server_endpoint"`
	ServiceAlertsTTLSeconds    int    `yaml:"caching_service_alerts_ttl_seconds"`
	TripUpdatesTTLSeconds      int    `yaml:"caching_trip_updates_ttl_seconds"`
	VehiclePositionsTTLSeconds int    `yaml:"caching_vehicle_positions_ttl_seconds"`
}

type MatchingConfig struct {
	MatchAgainstFirstStopID bool `yaml:"match_against_first_stop_id"`
	MatchAgainstStopIDs     bool `yaml:"match_against_stop_ids"`
	RemoveInvalidStopIDs    bool `yaml:"remove_invalid_stop_ids"`
}

type MQTTConfig struct {
	Host          string               `yaml:"host"`
	Port          int                  `yaml:"port"`
	Client        string               `yaml:"client"`
	KeepaliveSecs int                  `yaml:"keepalive"`
	Username      string               `yaml:"username"`
	Password      string               `yaml:"password"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
}

type SubscriptionConfig struct {
	Topic   string         `yaml:"topic"`
	Type    string         `yaml:"type"`
	Mapping *MappingConfig `yaml:"mapping"`
}

type MappingConfig struct {
	Routes string `yaml:"routes"`
	Stops  string `yaml:"stops"`
}

func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			CachingEnabled:    false,
			MonitorEnabled:    true,
			CORSEnabled:       true,
			MQTTEnabled:       true,
			DataReviewSeconds: 7200,
			Timezone:          "Europe/Berlin",
			Language:          "de-DE",
			Routing: RoutingConfig{
				ServiceAlerts:    "/gtfs/realtime/service-alerts.pbf",
				TripUpdates:      "/gtfs/realtime/trip-updates.pbf",
				VehiclePositions: "/gtfs/realtime/vehicle-positions.pbf",
				Monitor:          "/monitor",
			},
		},
		Caching: CachingConfig{
			ServiceAlertsTTLSeconds:    60,
			TripUpdatesTTLSeconds:      30,
			VehiclePositionsTTLSeconds: 15,
		},
		Matching: MatchingConfig{
			MatchAgainstFirstStopID: true,
			MatchAgainstStopIDs:     false,
			RemoveInvalidStopIDs:    true,
		},
		MQTT: MQTTConfig{
			Port:          1883,
			Client:        "transitlake-realtime",
			KeepaliveSecs: 60,
		},
	}
}

// LoadConfig reads a YAML config file over the compiled defaults. An
// empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.App.Timezone, err)
	}
	if c.App.DataReviewSeconds <= 0 {
		return fmt.Errorf("data_review_seconds must be positive")
	}

	if c.App.CachingEnabled && c.Caching.ServerEndpoint == "" {
		return fmt.Errorf("caching enabled but no caching_server_endpoint set")
	}

	if c.App.MQTTEnabled {
		if c.MQTT.Host == "" {
			return fmt.Errorf("mqtt enabled but no host set")
		}
		if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
			return fmt.Errorf("invalid mqtt port %d", c.MQTT.Port)
		}
		for _, sub := range c.MQTT.Subscriptions {
			if sub.Topic == "" {
				return fmt.Errorf("subscription without topic")
			}
			switch sub.Type {
			case FeedTypeServiceAlerts, FeedTypeTripUpdates, FeedTypeVehiclePositions:
			default:
				return fmt.Errorf("subscription '%s' has unknown type '%s'", sub.Topic, sub.Type)
			}
		}
	}

	return nil
}

func (c *Config) DataReviewPeriod() time.Duration {
	return time.Duration(c.App.DataReviewSeconds) * time.Second
}

func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
