package domain

import "time"

const (
	ShiftStandard = "standard"
	ShiftOvertime = "overtime"
)

// RunInputs: 操作员在排程前设置的运行参数
type RunInputs struct {
	ScheduleDate time.Time   `json:"scheduleDate"`
	ActiveCells  []CellColor `json:"activeCells"`
	ShiftType    string      `json:"shiftType"`

	OrangeEnabled bool `json:"orangeEnabled"`
	SummerMode    bool `json:"summerMode"`

	// ORANGE 产线默认排除的特殊模具，操作员可逐项放开
	OrangeAllow3InUrethane   bool `json:"orangeAllow3InUrethane"`
	OrangeAllowDouble2CC     bool `json:"orangeAllowDouble2CC"`
	OrangeAllowDeepDouble2CC bool `json:"orangeAllowDeepDouble2CC"`
}

func (in *RunInputs) ShiftMinutes() int {
	if in.ShiftType == ShiftOvertime {
		return 500
	}
	return 440
}

func (in *RunInputs) IsCellActive(cell CellColor) bool {
	for _, c := range in.ActiveCells {
		if c == cell {
			return true
		}
	}
	return false
}

// AllowedOnOrange 判断某种模具组合的工单是否允许排到 ORANGE
func (in *RunInputs) AllowedOnOrange(moldType MoldType, depth MoldDepth) bool {
	switch {
	case moldType == MoldType3InUrethane:
		return in.OrangeAllow3InUrethane
	case moldType == MoldTypeDouble2CC && depth == MoldDepthDeep:
		return in.OrangeAllowDeepDouble2CC
	case moldType == MoldTypeDouble2CC:
		return in.OrangeAllowDouble2CC
	default:
		return true
	}
}
