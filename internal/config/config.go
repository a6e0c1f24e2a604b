// Package config loads service settings from an optional app.env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/spf13/viper"

	"zoneroute/internal/cluster"
	"zoneroute/internal/opt"
	"zoneroute/internal/planner"
	"zoneroute/internal/zones"
)

type Config struct {
	Environment string  `mapstructure:"ENVIRONMENT"`
	Port        string  `mapstructure:"PORT"`
	RateRPS     float64 `mapstructure:"RATE_RPS"`
	RateBurst   int     `mapstructure:"RATE_BURST"`

	DatabaseURL string        `mapstructure:"DATABASE_URL"`
	RedisURL    string        `mapstructure:"REDIS_URL"`
	CacheTTL    time.Duration `mapstructure:"CACHE_TTL"`

	DataDir   string `mapstructure:"DATA_DIR"`
	RulesFile string `mapstructure:"RULES_FILE"`

	Strategy        string  `mapstructure:"STRATEGY"`
	MaxPasses       int     `mapstructure:"MAX_PASSES"`
	EfficiencyRatio float64 `mapstructure:"EFFICIENCY_RATIO"`
	LeftoverPolicy  string  `mapstructure:"LEFTOVER_POLICY"`
	BufferRadius    float64 `mapstructure:"BUFFER_RADIUS"`
	MergeDistance   float64 `mapstructure:"MERGE_DISTANCE"`
	MinClusterRatio float64 `mapstructure:"MIN_CLUSTER_RATIO"`
	MinClusterFloor int     `mapstructure:"MIN_CLUSTER_FLOOR"`
	ClusterZones    string  `mapstructure:"CLUSTER_ZONES"`
	MaxSnapMeters   float64 `mapstructure:"MAX_SNAP_METERS"`
	SpeedKmph       float64 `mapstructure:"SPEED_KMPH"`

	DepotLat     float64 `mapstructure:"DEPOT_LAT"`
	DepotLng     float64 `mapstructure:"DEPOT_LNG"`
	DeliveryDay  string  `mapstructure:"DELIVERY_DAY"`
	DeliveryHour int     `mapstructure:"DELIVERY_HOUR"`
	Holiday      bool    `mapstructure:"HOLIDAY"`

	SpillRoutes        bool `mapstructure:"SPILL_ROUTES"`
	FilterWorkers      int  `mapstructure:"FILTER_WORKERS"`
	WebhookMaxAttempts int  `mapstructure:"WEBHOOK_MAX_ATTEMPTS"`
}

func defaults(v *viper.Viper) {
	cp := cluster.DefaultParams()
	ap := planner.DefaultParams()
	pc := planner.DefaultConfig()

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("PORT", "8080")
	v.SetDefault("RATE_RPS", 20.0)
	v.SetDefault("RATE_BURST", 40)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("CACHE_TTL", 15*time.Minute)
	v.SetDefault("DATA_DIR", "")
	v.SetDefault("RULES_FILE", "")
	v.SetDefault("STRATEGY", string(opt.StrategyNearest2Opt))
	v.SetDefault("MAX_PASSES", 0)
	v.SetDefault("EFFICIENCY_RATIO", ap.EfficiencyRatio)
	v.SetDefault("LEFTOVER_POLICY", string(ap.LeftoverPolicy))
	v.SetDefault("BUFFER_RADIUS", cp.BufferRadius)
	v.SetDefault("MERGE_DISTANCE", cp.MergeDistance)
	v.SetDefault("MIN_CLUSTER_RATIO", cp.MinSizeRatio)
	v.SetDefault("MIN_CLUSTER_FLOOR", cp.MinSizeFloor)
	v.SetDefault("CLUSTER_ZONES", strings.Join(cp.Zones, ","))
	v.SetDefault("MAX_SNAP_METERS", ap.MaxSnapMeters)
	v.SetDefault("SPEED_KMPH", pc.SpeedKmph)
	v.SetDefault("DEPOT_LAT", planner.DefaultDepot.Lat())
	v.SetDefault("DEPOT_LNG", planner.DefaultDepot.Lon())
	v.SetDefault("DELIVERY_DAY", planner.DefaultContext.Day.String())
	v.SetDefault("DELIVERY_HOUR", planner.DefaultContext.Hour)
	v.SetDefault("HOLIDAY", false)
	v.SetDefault("SPILL_ROUTES", ap.SpillRoutes)
	v.SetDefault("FILTER_WORKERS", pc.FilterWorkers)
	v.SetDefault("WEBHOOK_MAX_ATTEMPTS", 5)
}

// Load reads app.env from path when present, then lets environment variables
// override every key.
func Load(path string) (Config, error) {
	v := viper.New()
	defaults(v)
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if _, err := cfg.PlannerConfig(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// PlannerConfig converts the routing keys into a planner configuration.
func (c Config) PlannerConfig() (planner.Config, error) {
	strategy, err := opt.ParseStrategy(c.Strategy)
	if err != nil {
		return planner.Config{}, err
	}
	policy, ok := planner.ParseLeftoverPolicy(c.LeftoverPolicy)
	if !ok {
		return planner.Config{}, fmt.Errorf("config: unknown LEFTOVER_POLICY %q", c.LeftoverPolicy)
	}
	dc, err := c.DeliveryContext()
	if err != nil {
		return planner.Config{}, err
	}
	var names []string
	for _, z := range strings.Split(c.ClusterZones, ",") {
		if z = strings.TrimSpace(z); z != "" {
			names = append(names, z)
		}
	}
	return planner.Config{
		Depot:   orb.Point{c.DepotLng, c.DepotLat},
		Context: dc,
		Cluster: cluster.Params{
			BufferRadius:  c.BufferRadius,
			MergeDistance: c.MergeDistance,
			MinSizeRatio:  c.MinClusterRatio,
			MinSizeFloor:  c.MinClusterFloor,
			Zones:         names,
		},
		Assign: planner.Params{
			EfficiencyRatio: c.EfficiencyRatio,
			MaxSnapMeters:   c.MaxSnapMeters,
			LeftoverPolicy:  policy,
			SpillRoutes:     c.SpillRoutes,
		},
		Strategy:      strategy,
		MaxPasses:     c.MaxPasses,
		SpeedKmph:     c.SpeedKmph,
		FilterWorkers: c.FilterWorkers,
	}, nil
}

// DeliveryContext is the context for plans that do not name one.
func (c Config) DeliveryContext() (zones.DeliveryContext, error) {
	day, err := zones.ParseWeekday(c.DeliveryDay)
	if err != nil {
		return zones.DeliveryContext{}, fmt.Errorf("config: DELIVERY_DAY: %w", err)
	}
	if c.DeliveryHour < 0 || c.DeliveryHour > 23 {
		return zones.DeliveryContext{}, fmt.Errorf("config: DELIVERY_HOUR %d out of range", c.DeliveryHour)
	}
	return zones.DeliveryContext{Day: day, Hour: c.DeliveryHour, Holiday: c.Holiday}, nil
}

func (c Config) Development() bool { return c.Environment == "development" }
