package params

import (
	"encoding/json"

	"github.com/pkg/errors"

	"rdkstepper/stepper"
	"rdkstepper/stepseq"
)

// Config is the JSON configuration of the host tools and the simulator
type Config struct {
	Port      string `json:"port"`       // serial device or host:port
	Baud      int    `json:"baud"`
	ParamFile string `json:"param_file"` // persistent parameter region

	BusMilliVolts uint32 `json:"bus_millivolts"`

	// Simulated motor
	InductanceMicroHenry uint32 `json:"inductance_uh"`

	Parameters DriveParameters `json:"parameters"`
	Debug      bool            `json:"debug"`
}

// LoadConfig parses a JSON configuration. Parameters not given keep their
// factory values.
func LoadConfig(jsonData []byte) (*Config, error) {
	config := Config{Parameters: Defaults()}

	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	applyDefaults(&config)

	if err := config.Parameters.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid parameters")
	}
	return &config, nil
}

func applyDefaults(config *Config) {
	if config.Baud == 0 {
		config.Baud = 115200
	}
	if config.BusMilliVolts == 0 {
		config.BusMilliVolts = 60000
	}
	if config.InductanceMicroHenry == 0 {
		config.InductanceMicroHenry = 2500
	}
	if config.ParamFile == "" {
		config.ParamFile = "rdkstepper.params"
	}
}

// ErrMoving is returned when parameters are applied to a moving motor
var ErrMoving = errors.New("motor is moving")

// Apply pushes every parameter to the motor. The control mode goes last
// since its setup depends on the PWM frequency and the currents.
func Apply(p *DriveParameters, st *stepper.Stepper, busMilliVolts uint32) error {
	if st.Sequencer().Status() != stepseq.PhaseStop {
		return ErrMoving
	}

	st.SetStepMode(p.StepMode)
	st.SetDecayMode(p.DecayMode)
	st.SetFixedOnTime(uint32(p.FixedOnTime))
	st.SetPWMFreq(uint32(p.PWMFrequency))
	st.SetBlankingTime(uint32(p.BlankOffTime))
	st.SetMotorParms(uint32(p.DriveCurrent), uint32(p.HoldCurrent), busMilliVolts, uint32(p.Resistance))
	st.SetFaultParms(uint32(p.MaxCurrent))
	st.SetControlMode(p.ControlMode)
	return nil
}
