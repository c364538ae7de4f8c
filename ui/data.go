package ui

import (
	"rdkstepper/protocol"
)

type dataItem struct {
	id   byte
	size int
	get  func() uint32
}

// buildItems lays out the real-time data items in stream order
func (u *UI) buildItems() []dataItem {
	return []dataItem{
		{protocol.DataRotorSpeed, 2, u.rotorSpeed},
		{protocol.DataMotorCurrent, 2, func() uint32 { return u.motorCurrent }},
		{protocol.DataBusVoltage, 2, func() uint32 { return u.busMilliVolts }},
		{protocol.DataMotorPosition, 4, func() uint32 { return uint32(u.st.Sequencer().Position()) }},
		{protocol.DataMotorStatus, 1, func() uint32 { return uint32(u.st.Sequencer().Status()) }},
		{protocol.DataProcessorUsage, 1, func() uint32 { return uint32(u.cpuUsage) }},
		{protocol.DataFaultStatus, 1, func() uint32 { return uint32(u.st.FaultFlags()) }},
		{protocol.DataTemperature, 2, func() uint32 { return uint32(int32(u.temperature)) }},
	}
}

// rotorSpeed is the current speed in whole steps per second
func (u *UI) rotorSpeed() uint32 {
	seq := u.st.Sequencer()
	return seq.Speed() / seq.Modes().Step.Scale()
}

// sendData emits one data frame with every enabled item
func (u *UI) sendData() {
	var buf [protocol.FrameMax]byte
	frame := buf[:0]
	for _, it := range u.items {
		if u.enabled[it.id] {
			frame = protocol.AppendValue(frame, it.get(), it.size)
		}
	}
	u.transport.SendData(frame)
}
