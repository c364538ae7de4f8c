//go:build js && wasm

// Command wasm exports the drive's serial framing to a browser front end.
package main

import (
	"encoding/hex"
	"errors"
	"syscall/js"

	"rdkstepper/protocol"
)

func main() {
	js.Global().Set("rdkstepperWasm", js.ValueOf(map[string]interface{}{
		"encodeCommand": js.FuncOf(encodeCommandWrapper),
		"decodeFrames":  js.FuncOf(decodeFramesWrapper),
		"checksum":      js.FuncOf(checksumWrapper),
		"paramName":     js.FuncOf(paramNameWrapper),
		"dataName":      js.FuncOf(dataNameWrapper),
		"decodeValue":   js.FuncOf(decodeValueWrapper),
	}))

	// Keep the program running
	select {}
}

// encodeCommandWrapper builds a command frame
// Args: cmd (number), payloadHex (string)
// Returns: hex string
func encodeCommandWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("error: missing arguments")
	}
	payload, err := hex.DecodeString(args[1].String())
	if err != nil {
		return js.ValueOf("error: invalid payload hex: " + err.Error())
	}
	frame, err := protocol.EncodeCommand(byte(args[0].Int()), payload)
	if err != nil {
		return js.ValueOf("error: " + err.Error())
	}
	return js.ValueOf(hex.EncodeToString(frame))
}

// decodeFramesWrapper splits received bytes into frames
// Args: hexString (string)
// Returns: {frames: [{tag, cmd, payload}], consumed, skipped, error}
func decodeFramesWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeFramesResult(nil, 0, 0, "missing hex string argument")
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return makeFramesResult(nil, 0, 0, "invalid hex string: "+err.Error())
	}

	var frames []interface{}
	consumed, skipped := 0, 0
	for consumed < len(data) {
		f, n, err := protocol.DecodeFrame(data[consumed:])
		if errors.Is(err, protocol.ErrShortFrame) {
			break
		}
		if err != nil {
			consumed++
			skipped++
			continue
		}
		frames = append(frames, map[string]interface{}{
			"tag":     int(f.Tag),
			"cmd":     int(f.Cmd),
			"payload": hex.EncodeToString(f.Payload),
		})
		consumed += n
	}
	return makeFramesResult(frames, consumed, skipped, "")
}

// checksumWrapper returns the byte that makes the frame sum to zero
// Args: hexString (string)
func checksumWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil {
		return js.ValueOf(0)
	}
	return js.ValueOf(int(protocol.Checksum(data)))
}

func paramNameWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("")
	}
	return js.ValueOf(protocol.ParamName(byte(args[0].Int())))
}

func dataNameWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf("")
	}
	return js.ValueOf(protocol.DataName(byte(args[0].Int())))
}

// decodeValueWrapper reads a little-endian value
// Args: hexString (string), signed (bool)
func decodeValueWrapper(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return js.ValueOf(0)
	}
	data, err := hex.DecodeString(args[0].String())
	if err != nil || len(data) == 0 || len(data) > 4 {
		return js.ValueOf(0)
	}
	v := protocol.Value(data)
	if len(args) > 1 && args[1].Bool() {
		return js.ValueOf(int(protocol.SignExtend(v, len(data))))
	}
	return js.ValueOf(int(v))
}

func makeFramesResult(frames []interface{}, consumed, skipped int, errMsg string) js.Value {
	result := make(map[string]interface{})
	if frames == nil {
		frames = []interface{}{}
	}
	result["frames"] = frames
	result["consumed"] = consumed
	result["skipped"] = skipped
	if errMsg != "" {
		result["error"] = errMsg
	}
	return js.ValueOf(result)
}
