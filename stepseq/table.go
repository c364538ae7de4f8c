package stepseq

// microStepTable holds the relative current of windings A and B over one
// electrical cycle (four full steps) in 32 micro steps, scaled to 65536.
// Full steps fall on rows 0, 8, 16 and 24, half steps on multiples of 4.
var microStepTable = [32][2]int32{
	{46341, 46341}, {54491, 36410}, {60547, 25080}, {64277, 12785},
	{65536, 0}, {64277, -12785}, {60547, -25080}, {54491, -36410},
	{46341, -46341}, {36410, -54491}, {25080, -60547}, {12785, -64277},
	{0, -65536}, {-12785, -64277}, {-25080, -60547}, {-36410, -54491},
	{-46341, -46341}, {-54491, -36410}, {-60547, -25080}, {-64277, -12785},
	{-65536, 0}, {-64277, 12785}, {-60547, 25080}, {-54491, 36410},
	{-46341, 46341}, {-36410, 54491}, {-25080, 60547}, {-12785, 64277},
	{0, 65536}, {12785, 64277}, {25080, 60547}, {36410, 54491},
}

const fullLevel = 65536

// tableIndex returns the micro step table row for a 24.8 position. Wave
// drive is offset by half a step so whole positions land on the rows with
// a single winding energized.
func tableIndex(pos int32, mode StepMode) int {
	if mode == StepWave {
		pos += 0x80
	}
	return int((pos >> 5) & 0x1f)
}

// stepLevel returns the signed level of a winding at a table row. Only
// micro stepping uses the intermediate values; the other modes drive full
// magnitude or nothing.
func stepLevel(idx int, winding int, mode StepMode) int32 {
	level := microStepTable[idx][winding]
	if mode == StepMicro {
		return level
	}
	switch {
	case level > 0:
		return fullLevel
	case level < 0:
		return -fullLevel
	}
	return 0
}
