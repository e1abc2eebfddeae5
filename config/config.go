// Package config holds the deployment-time machine configuration.
// Nothing in here is mutable over the serial protocol; the values are
// fixed when the firmware process starts.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AxisConfig describes a single stepper-driven axis. Pin numbers may
// be 0 when set explicitly in a config file or the environment; the
// built-in Default treats 0 as unset.
type AxisConfig struct {
	StepPin    uint32  // GPIO pin for step pulses
	DirPin     uint32  // GPIO pin for direction
	InvertDir  bool    // Invert direction signal
	EndstopPin int     // GPIO pin of the reference sensor, -1 if absent
	StepsPerMM float64 // Steps per millimeter
}

// MotionConfig holds parameters shared by all axes.
type MotionConfig struct {
	EnablePin   uint32        // Shared driver-enable output
	InvertEn    bool          // Invert enable signal
	DefaultFeed float64       // Default feed rate (mm/min)
	MaxFeed     float64       // Feed rates above this are capped (mm/min)
	SettleDelay time.Duration // Enable held after motion before release
	HomingFeed  float64       // Feed rate used while seeking endstops (mm/min)
}

// EffectorConfig describes the servo arm and the electromagnet.
type EffectorConfig struct {
	ServoPin       uint32        // PWM output for the servo
	MagnetPin      uint32        // Digital output for the electromagnet
	RestAngle      float64       // Angle the arm parks at (degrees)
	MinAngle       float64       // Lower servo travel limit (degrees)
	MaxAngle       float64       // Upper servo travel limit (degrees)
	MaxStepDeg     float64       // Largest per-tick angle change (degrees)
	TickInterval   time.Duration // Delay between easing increments
	AttachDelay    time.Duration // One-time stabilization after energizing
	IdleTimeout    time.Duration // Idle time at target before de-energizing
	MagnetSentinel float64       // S value that means "engage magnet"
}

// BoardConfig maps chess cells to machine coordinates and fixes the
// pick/place choreography constants.
type BoardConfig struct {
	CellSizeMM   float64       // Edge length of one board cell
	Rows         int           // Board rows addressable over the protocol
	Cols         int           // Board columns addressable over the protocol
	SafeHeight   float64       // Z for horizontal transit (mm)
	PickupHeight float64       // Z at which the magnet can engage a piece (mm)
	GrabDwell    time.Duration // Magnetization settle after engage
	ReleaseDwell time.Duration // Settle after release
	ParkingLeft  int           // Capture parking slots on the low-column side
	ParkingRight int           // Capture parking slots on the high-column side
}

// SerialConfig configures the transport.
type SerialConfig struct {
	Device string // e.g. /dev/ttyUSB0, COM3; empty means stdio
	Baud   int
}

// Config is the complete firmware configuration.
type Config struct {
	Axes     map[string]AxisConfig
	Motion   MotionConfig
	Effector EffectorConfig
	Board    BoardConfig
	Serial   SerialConfig
}

// Load reads the configuration from an optional file plus AUTOCHESS_*
// environment variables, filling everything else with defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("autochess")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration for the reference mechanism.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// setDefaults registers every key with viper. AutomaticEnv only
// consults the environment for keys viper already knows, so each
// field is listed here even when its default is the zero value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("axes.x.steppin", 2)
	v.SetDefault("axes.x.dirpin", 5)
	v.SetDefault("axes.x.invertdir", false)
	v.SetDefault("axes.x.endstoppin", 9)
	v.SetDefault("axes.x.stepspermm", 80)
	v.SetDefault("axes.y.steppin", 3)
	v.SetDefault("axes.y.dirpin", 6)
	v.SetDefault("axes.y.invertdir", false)
	v.SetDefault("axes.y.endstoppin", 10)
	v.SetDefault("axes.y.stepspermm", 80)
	v.SetDefault("axes.z.steppin", 4)
	v.SetDefault("axes.z.dirpin", 7)
	v.SetDefault("axes.z.invertdir", false)
	v.SetDefault("axes.z.endstoppin", -1)
	v.SetDefault("axes.z.stepspermm", 400)

	v.SetDefault("motion.enablepin", 8)
	v.SetDefault("motion.inverten", false)
	v.SetDefault("motion.defaultfeed", 1500)
	v.SetDefault("motion.maxfeed", 3000)
	v.SetDefault("motion.settledelay", 25*time.Millisecond)
	v.SetDefault("motion.homingfeed", 300)

	v.SetDefault("effector.servopin", 11)
	v.SetDefault("effector.magnetpin", 12)
	v.SetDefault("effector.restangle", 0)
	v.SetDefault("effector.minangle", 0)
	v.SetDefault("effector.maxangle", 180)
	v.SetDefault("effector.maxstepdeg", 2)
	v.SetDefault("effector.tickinterval", 15*time.Millisecond)
	v.SetDefault("effector.attachdelay", 200*time.Millisecond)
	v.SetDefault("effector.idletimeout", 2*time.Second)
	v.SetDefault("effector.magnetsentinel", 255)

	v.SetDefault("board.cellsizemm", 50)
	v.SetDefault("board.rows", 4)
	v.SetDefault("board.cols", 4)
	v.SetDefault("board.safeheight", 40)
	v.SetDefault("board.pickupheight", 5)
	v.SetDefault("board.grabdwell", time.Second)
	v.SetDefault("board.releasedwell", time.Second)
	v.SetDefault("board.parkingleft", 3)
	v.SetDefault("board.parkingright", 3)

	v.SetDefault("serial.device", "")
	v.SetDefault("serial.baud", 115200)
}

// applyDefaults fills zero values with the reference mechanism's
// deployment constants. Only Default uses it; Load carries the same
// constants as registered viper defaults, where a file or environment
// value of 0 is preserved. A deployment that needs GPIO 0 for a pin
// must therefore set it through the file or environment, not through
// this zero-means-unset backfill.
func applyDefaults(cfg *Config) {
	if cfg.Axes == nil {
		cfg.Axes = map[string]AxisConfig{}
	}
	defaultAxes := map[string]AxisConfig{
		"x": {StepPin: 2, DirPin: 5, EndstopPin: 9, StepsPerMM: 80},
		"y": {StepPin: 3, DirPin: 6, EndstopPin: 10, StepsPerMM: 80},
		"z": {StepPin: 4, DirPin: 7, EndstopPin: -1, StepsPerMM: 400},
	}
	for name, def := range defaultAxes {
		axis, ok := cfg.Axes[name]
		if !ok {
			cfg.Axes[name] = def
			continue
		}
		if axis.StepsPerMM == 0 {
			axis.StepsPerMM = def.StepsPerMM
		}
		if axis.StepPin == 0 {
			axis.StepPin = def.StepPin
		}
		if axis.DirPin == 0 {
			axis.DirPin = def.DirPin
		}
		if axis.EndstopPin == 0 {
			axis.EndstopPin = def.EndstopPin
		}
		cfg.Axes[name] = axis
	}

	m := &cfg.Motion
	if m.EnablePin == 0 {
		m.EnablePin = 8
	}
	if m.DefaultFeed == 0 {
		m.DefaultFeed = 1500
	}
	if m.MaxFeed == 0 {
		m.MaxFeed = 3000
	}
	if m.SettleDelay == 0 {
		m.SettleDelay = 25 * time.Millisecond
	}
	if m.HomingFeed == 0 {
		m.HomingFeed = 300
	}

	e := &cfg.Effector
	if e.ServoPin == 0 {
		e.ServoPin = 11
	}
	if e.MagnetPin == 0 {
		e.MagnetPin = 12
	}
	if e.MaxAngle == 0 {
		e.MaxAngle = 180
	}
	if e.MaxStepDeg == 0 {
		e.MaxStepDeg = 2
	}
	if e.TickInterval == 0 {
		e.TickInterval = 15 * time.Millisecond
	}
	if e.AttachDelay == 0 {
		e.AttachDelay = 200 * time.Millisecond
	}
	if e.IdleTimeout == 0 {
		e.IdleTimeout = 2 * time.Second
	}
	if e.MagnetSentinel == 0 {
		e.MagnetSentinel = 255
	}

	b := &cfg.Board
	if b.CellSizeMM == 0 {
		b.CellSizeMM = 50
	}
	if b.Rows == 0 {
		b.Rows = 4
	}
	if b.Cols == 0 {
		b.Cols = 4
	}
	if b.SafeHeight == 0 {
		b.SafeHeight = 40
	}
	if b.PickupHeight == 0 {
		b.PickupHeight = 5
	}
	if b.GrabDwell == 0 {
		b.GrabDwell = time.Second
	}
	if b.ReleaseDwell == 0 {
		b.ReleaseDwell = time.Second
	}
	if b.ParkingLeft == 0 {
		b.ParkingLeft = 3
	}
	if b.ParkingRight == 0 {
		b.ParkingRight = 3
	}

	if cfg.Serial.Baud == 0 {
		cfg.Serial.Baud = 115200
	}
}

func validate(cfg *Config) error {
	for _, name := range []string{"x", "y", "z"} {
		axis, ok := cfg.Axes[name]
		if !ok {
			return fmt.Errorf("config: axis %q missing", name)
		}
		if axis.StepsPerMM <= 0 {
			return fmt.Errorf("config: axis %q: steps-per-mm must be positive", name)
		}
	}
	if cfg.Board.PickupHeight >= cfg.Board.SafeHeight {
		return fmt.Errorf("config: pickup height %.1f must be below safe height %.1f",
			cfg.Board.PickupHeight, cfg.Board.SafeHeight)
	}
	if cfg.Effector.MagnetSentinel <= cfg.Effector.MaxAngle {
		return fmt.Errorf("config: magnet sentinel %.0f collides with the servo angle range",
			cfg.Effector.MagnetSentinel)
	}
	return nil
}
