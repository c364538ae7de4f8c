package protocol

// Parameter IDs of the stepper drive
const (
	ParamFirmwareVersion = 0x00
	ParamTargetSpeed     = 0x04
	ParamCurrentSpeed    = 0x05
	ParamAccel           = 0x06
	ParamDecel           = 0x07
	ParamTargetPos       = 0x08
	ParamCurrentPos      = 0x09
	ParamPWMFrequency    = 0x0f
	ParamMaxCurrent      = 0x17
	ParamUseOnboardUI    = 0x1e
	ParamControlMode     = 0x22
	ParamDecayMode       = 0x23
	ParamStepMode        = 0x24
	ParamFixedOnTime     = 0x25
	ParamResistance      = 0x26
	ParamBlankOff        = 0x27
	ParamHoldingCurrent  = 0x28
	ParamFaultStatus     = 0x2c
	ParamMotorStatus     = 0x2d
	ParamTargetCurrent   = 0x32
)

// Real-time data item IDs
const (
	DataMotorCurrent   = 0x03
	DataBusVoltage     = 0x04
	DataMotorPosition  = 0x05
	DataRotorSpeed     = 0x07
	DataProcessorUsage = 0x08
	DataMotorStatus    = 0x09
	DataFaultStatus    = 0x0b
	DataTemperature    = 0x0c

	// DataNumItems bounds the item IDs accepted by enable and disable
	DataNumItems = 0x10
)

var paramNames = map[byte]string{
	ParamFirmwareVersion: "firmware_version",
	ParamTargetSpeed:     "target_speed",
	ParamCurrentSpeed:    "current_speed",
	ParamAccel:           "accel",
	ParamDecel:           "decel",
	ParamTargetPos:       "target_pos",
	ParamCurrentPos:      "current_pos",
	ParamPWMFrequency:    "pwm_frequency",
	ParamMaxCurrent:      "max_current",
	ParamUseOnboardUI:    "use_onboard_ui",
	ParamControlMode:     "control_mode",
	ParamDecayMode:       "decay_mode",
	ParamStepMode:        "step_mode",
	ParamFixedOnTime:     "fixed_on_time",
	ParamResistance:      "resistance",
	ParamBlankOff:        "blank_off",
	ParamHoldingCurrent:  "holding_current",
	ParamFaultStatus:     "fault_status",
	ParamMotorStatus:     "motor_status",
	ParamTargetCurrent:   "target_current",
}

var dataNames = map[byte]string{
	DataMotorCurrent:   "motor_current",
	DataBusVoltage:     "bus_voltage",
	DataMotorPosition:  "motor_position",
	DataRotorSpeed:     "rotor_speed",
	DataProcessorUsage: "processor_usage",
	DataMotorStatus:    "motor_status",
	DataFaultStatus:    "fault_status",
	DataTemperature:    "temperature",
}

// ParamName returns the name of a parameter ID, or "" if unknown
func ParamName(id byte) string { return paramNames[id] }

// ParamByName returns the ID of a named parameter
func ParamByName(name string) (byte, bool) {
	for id, n := range paramNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}

// DataName returns the name of a data item ID, or "" if unknown
func DataName(id byte) string { return dataNames[id] }

// DataByName returns the ID of a named data item
func DataByName(name string) (byte, bool) {
	for id, n := range dataNames {
		if n == name {
			return id, true
		}
	}
	return 0, false
}
