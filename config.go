package pansim

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the explicit, once-per-worker configuration value that
// replaces the source implementation's reliance on process-level
// environment variables (Design Note, spec section 9). It is built
// once by LoadConfig and passed by reference to every actor.
type Config struct {
	Seed     int64
	TickTime int32
	NumTicks int32

	AttrNames []string

	DiseaseModelFile string
	StartStateFile   string
	VisitFiles       []string
	LIDPartitionFile string
	PIDPartitionFile string
	OutputFile       string

	PerNodeBehavior bool

	// BehaviorServiceURL, if set, routes every behavior rank to a
	// RemoteBehaviorModel dialed at this websocket URL instead of the
	// in-process ReferenceBehaviorModel.
	BehaviorServiceURL string

	// Reference behavior continuous-seeding knobs, spec section 6.
	StartExposedSeed int
	HasStartExposed  bool
	TickExposedSeed  int
	HasTickExposed   bool

	// TickTimeout is an operational escape hatch only (spec section
	// 5): zero means "wait forever" for a tick's barriers to complete.
	TickTimeout time.Duration

	// EpicurveLoggerKind selects the output sink: "csv" (default),
	// "sqlite", or "mongo".
	EpicurveLoggerKind string
	MongoURI           string
	MongoDatabase      string
}

// scenarioOverlay is the optional YAML document SCENARIO_FILE may
// point at, giving the richer optional knobs (continuous seeding,
// Mongo sink) a structured home instead of piling on more environment
// variables (SPEC_FULL.md section 6).
type scenarioOverlay struct {
	StartExposedSeed *int   `yaml:"start_exposed_seed"`
	TickExposedSeed  *int   `yaml:"tick_exposed_seed"`
	PerNodeBehavior  *bool  `yaml:"per_node_behavior"`
	MongoURI         string `yaml:"mongo_uri"`
	MongoDatabase    string `yaml:"mongo_database"`
	EpicurveLogger   string `yaml:"epicurve_logger"`
}

// LoadConfig reads the environment-variable configuration described in
// spec section 6 via viper, and, if SCENARIO_FILE is set, layers the
// YAML scenario overlay on top of it.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("TICK_TIMEOUT_SECONDS", 0)
	v.SetDefault("EPICURVE_LOGGER", "csv")

	cfg := &Config{
		Seed:               v.GetInt64("SEED"),
		TickTime:           int32(v.GetInt("TICK_TIME")),
		NumTicks:           int32(v.GetInt("NUM_TICKS")),
		DiseaseModelFile:   v.GetString("DISEASE_MODEL_FILE"),
		StartStateFile:     v.GetString("START_STATE_FILE"),
		LIDPartitionFile:   v.GetString("LID_PARTITION"),
		PIDPartitionFile:   v.GetString("PID_PARTITION"),
		OutputFile:         v.GetString("OUTPUT_FILE"),
		PerNodeBehavior:    v.GetBool("PER_NODE_BEHAVIOR"),
		BehaviorServiceURL: v.GetString("BEHAVIOR_SERVICE_URL"),
		EpicurveLoggerKind: v.GetString("EPICURVE_LOGGER"),
		TickTimeout:        time.Duration(v.GetInt("TICK_TIMEOUT_SECONDS")) * time.Second,
	}

	attrs := v.GetString("VISUAL_ATTRIBUTES")
	if strings.TrimSpace(attrs) != "" {
		for _, a := range strings.Split(attrs, ",") {
			cfg.AttrNames = append(cfg.AttrNames, strings.TrimSpace(a))
		}
	}

	for i := 0; ; i++ {
		key := "VISIT_FILE_" + strconv.Itoa(i)
		if !v.IsSet(key) {
			break
		}
		cfg.VisitFiles = append(cfg.VisitFiles, v.GetString(key))
	}

	if k := v.GetString("START_EXPOSED_SEED"); k != "" {
		cfg.StartExposedSeed = v.GetInt("START_EXPOSED_SEED")
		cfg.HasStartExposed = true
	}
	if k := v.GetString("TICK_EXPOSED_SEED"); k != "" {
		cfg.TickExposedSeed = v.GetInt("TICK_EXPOSED_SEED")
		cfg.HasTickExposed = true
	}

	if scenarioPath := v.GetString("SCENARIO_FILE"); scenarioPath != "" {
		if err := applyScenarioOverlay(cfg, scenarioPath); err != nil {
			return nil, err
		}
	}

	if err := cfg.validateRequired(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyScenarioOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return Wrapf(ConfigError, err, "reading scenario file %q", path)
	}
	var overlay scenarioOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Wrapf(ConfigError, err, "parsing scenario file %q", path)
	}
	if overlay.StartExposedSeed != nil {
		cfg.StartExposedSeed = *overlay.StartExposedSeed
		cfg.HasStartExposed = true
	}
	if overlay.TickExposedSeed != nil {
		cfg.TickExposedSeed = *overlay.TickExposedSeed
		cfg.HasTickExposed = true
	}
	if overlay.PerNodeBehavior != nil {
		cfg.PerNodeBehavior = *overlay.PerNodeBehavior
	}
	if overlay.MongoURI != "" {
		cfg.MongoURI = overlay.MongoURI
	}
	if overlay.MongoDatabase != "" {
		cfg.MongoDatabase = overlay.MongoDatabase
	}
	if overlay.EpicurveLogger != "" {
		cfg.EpicurveLoggerKind = overlay.EpicurveLogger
	}
	return nil
}

func (c *Config) validateRequired() error {
	required := map[string]string{
		"DISEASE_MODEL_FILE": c.DiseaseModelFile,
		"START_STATE_FILE":   c.StartStateFile,
		"OUTPUT_FILE":        c.OutputFile,
	}
	for name, v := range required {
		if v == "" {
			return Newf(ConfigError, MissingEnvVarError, name)
		}
	}
	if c.NumTicks <= 0 {
		return Newf(ConfigError, MissingEnvVarError, "NUM_TICKS")
	}
	if c.TickTime <= 0 {
		return Newf(ConfigError, MissingEnvVarError, "TICK_TIME")
	}
	if len(c.VisitFiles) == 0 {
		return Newf(ConfigError, MissingEnvVarError, "VISIT_FILE_0")
	}
	return nil
}
