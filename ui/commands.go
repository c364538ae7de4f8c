package ui

import (
	"rdkstepper/core"
	"rdkstepper/protocol"
)

func (u *UI) registerCommands() {
	r := u.registry
	r.Register(protocol.CmdIDTarget, "id_target", u.cmdTarget)
	r.Register(protocol.CmdDiscoverTarget, "discover_target", u.cmdTarget)
	r.Register(protocol.CmdGetParams, "get_params", u.cmdGetParams)
	r.Register(protocol.CmdGetParamDesc, "get_param_desc", u.cmdGetParamDesc)
	r.Register(protocol.CmdGetParamValue, "get_param_value", u.cmdGetParamValue)
	r.Register(protocol.CmdSetParamValue, "set_param_value", u.cmdSetParamValue)
	r.Register(protocol.CmdLoadParams, "load_params", func([]byte) ([]byte, error) {
		if err := u.loadParams(); err != nil {
			core.DebugPrintln("ui: load params: " + err.Error())
			return nil, &protocol.Failure{Err: err}
		}
		return nil, nil
	})
	r.Register(protocol.CmdSaveParams, "save_params", func([]byte) ([]byte, error) {
		if err := u.saveParams(); err != nil {
			core.DebugPrintln("ui: save params: " + err.Error())
			return nil, &protocol.Failure{Err: err}
		}
		return nil, nil
	})
	r.Register(protocol.CmdGetDataItems, "get_data_items", u.cmdGetDataItems)
	r.Register(protocol.CmdEnableDataItem, "enable_data_item", func(data []byte) ([]byte, error) {
		u.setItem(data, true)
		return nil, nil
	})
	r.Register(protocol.CmdDisableDataItem, "disable_data_item", func(data []byte) ([]byte, error) {
		u.setItem(data, false)
		return nil, nil
	})
	r.Register(protocol.CmdStartDataStream, "start_data_stream", func([]byte) ([]byte, error) {
		u.streaming = true
		return nil, nil
	})
	r.Register(protocol.CmdStopDataStream, "stop_data_stream", func([]byte) ([]byte, error) {
		u.streaming = false
		return nil, nil
	})
	r.Register(protocol.CmdRun, "run", func([]byte) ([]byte, error) {
		u.st.Enable()
		return nil, nil
	})
	r.Register(protocol.CmdStop, "stop", func([]byte) ([]byte, error) {
		u.st.Disable()
		return nil, nil
	})
	r.Register(protocol.CmdEmergencyStop, "emergency_stop", func([]byte) ([]byte, error) {
		u.st.EmergencyStop()
		return nil, nil
	})
}

func (u *UI) cmdTarget([]byte) ([]byte, error) {
	return []byte{protocol.TargetStepper}, nil
}

func (u *UI) cmdGetParams([]byte) ([]byte, error) {
	ids := make([]byte, len(u.table))
	for i := range u.table {
		ids[i] = u.table[i].id
	}
	return ids, nil
}

// cmdGetParamDesc answers size, min, max and step. An unknown parameter
// answers a zero size, a parameter wider than 4 bytes only its size.
func (u *UI) cmdGetParamDesc(data []byte) ([]byte, error) {
	if len(data) != 1 {
		return []byte{0}, nil
	}
	p := u.findParam(data[0])
	if p == nil {
		return []byte{0}, nil
	}
	if p.size > 4 {
		return []byte{byte(p.size)}, nil
	}
	resp := make([]byte, 0, 1+3*p.size)
	resp = append(resp, byte(p.size))
	resp = protocol.AppendValue(resp, p.min, p.size)
	resp = protocol.AppendValue(resp, p.max, p.size)
	return protocol.AppendValue(resp, p.step, p.size), nil
}

func (u *UI) cmdGetParamValue(data []byte) ([]byte, error) {
	if len(data) != 1 {
		return nil, nil
	}
	p := u.findParam(data[0])
	if p == nil {
		return nil, nil
	}
	return protocol.AppendValue(nil, p.get(), p.size), nil
}

// cmdSetParamValue stores a little endian value, zeroing the bytes not
// supplied, clamps it to range and runs the update callback. Read-only and
// unknown parameters are left alone; the reply is the same either way.
func (u *UI) cmdSetParamValue(data []byte) ([]byte, error) {
	if len(data) < 2 {
		return nil, nil
	}
	p := u.findParam(data[0])
	if p == nil || p.step == 0 {
		return nil, nil
	}
	raw := data[1:]
	if len(raw) > p.size {
		raw = raw[:p.size]
	}
	p.set(p.clamp(protocol.Value(raw)))
	if p.update != nil {
		p.update()
	}
	return nil, nil
}

func (u *UI) cmdGetDataItems([]byte) ([]byte, error) {
	resp := make([]byte, 0, 2*len(u.items))
	for _, it := range u.items {
		resp = append(resp, it.id, byte(it.size))
	}
	return resp, nil
}

func (u *UI) setItem(data []byte, on bool) {
	if len(data) == 1 && data[0] < protocol.DataNumItems {
		u.enabled[data[0]] = on
	}
}
