package main

import (
	"fmt"
	"strconv"
	"time"

	"periph.io/x/conn/v3/physic"

	"rdkstepper/host/drive"
	"rdkstepper/protocol"
	"rdkstepper/stepseq"
)

func formatParam(desc drive.ParamDesc, v uint32) string {
	switch desc.ID {
	case protocol.ParamTargetCurrent, protocol.ParamHoldingCurrent, protocol.ParamMaxCurrent:
		return (physic.ElectricCurrent(v) * physic.MilliAmpere).String()
	case protocol.ParamPWMFrequency:
		return (physic.Frequency(v) * physic.Hertz).String()
	case protocol.ParamResistance:
		return (physic.ElectricResistance(v) * physic.MilliOhm).String()
	case protocol.ParamFixedOnTime, protocol.ParamBlankOff:
		return (time.Duration(v) * time.Microsecond).String()
	case protocol.ParamControlMode:
		return stepseq.ControlMode(v).String()
	case protocol.ParamDecayMode:
		return stepseq.DecayMode(v).String()
	case protocol.ParamStepMode:
		return stepseq.StepMode(v).String()
	case protocol.ParamMotorStatus:
		return stepseq.Phase(v).String()
	case protocol.ParamTargetPos, protocol.ParamCurrentPos:
		// 24.8 fixed point steps
		pos := int32(v)
		return fmt.Sprintf("%d (%.2f steps)", pos, float64(pos)/256)
	}
	if desc.Signed() {
		return strconv.Itoa(int(protocol.SignExtend(v, desc.Size)))
	}
	return strconv.FormatUint(uint64(v), 10)
}

// parseParam accepts a raw integer or, for physical parameters, a value
// with units such as "1.2A", "25kHz" or "750mOhm"
func parseParam(desc drive.ParamDesc, s string) (uint32, error) {
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return uint32(n), nil
	}
	switch desc.ID {
	case protocol.ParamTargetCurrent, protocol.ParamHoldingCurrent, protocol.ParamMaxCurrent:
		var c physic.ElectricCurrent
		if err := c.Set(s); err != nil {
			return 0, err
		}
		return uint32(c / physic.MilliAmpere), nil
	case protocol.ParamPWMFrequency:
		var f physic.Frequency
		if err := f.Set(s); err != nil {
			return 0, err
		}
		return uint32(f / physic.Hertz), nil
	case protocol.ParamResistance:
		var r physic.ElectricResistance
		if err := r.Set(s); err != nil {
			return 0, err
		}
		return uint32(r / physic.MilliOhm), nil
	case protocol.ParamFixedOnTime, protocol.ParamBlankOff:
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, err
		}
		return uint32(d / time.Microsecond), nil
	}
	return 0, fmt.Errorf("invalid value %q", s)
}

func formatItem(it drive.DataItem, v uint32) string {
	switch it.ID {
	case protocol.DataMotorCurrent:
		return (physic.ElectricCurrent(v) * physic.MilliAmpere).String()
	case protocol.DataBusVoltage:
		return (physic.ElectricPotential(v) * physic.MilliVolt).String()
	case protocol.DataTemperature:
		t := physic.Temperature(protocol.SignExtend(v, it.Size))
		return (t*physic.Celsius + physic.ZeroCelsius).String()
	case protocol.DataMotorPosition:
		return strconv.Itoa(int(int32(v)))
	case protocol.DataMotorStatus:
		return stepseq.Phase(v).String()
	case protocol.DataProcessorUsage:
		return fmt.Sprintf("%d%%", v)
	}
	return strconv.FormatUint(uint64(v), 10)
}
