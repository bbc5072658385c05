package domain

import (
	"strconv"
	"time"
)

type MoldType string

const (
	MoldTypeStandard    MoldType = "STANDARD"
	MoldTypeDouble2CC   MoldType = "DOUBLE2CC"
	MoldType3InUrethane MoldType = "3INURETHANE"
)

// ValidTables: ON_TABLE_TODAY 可以取的十二个工作台名称
var ValidTables = map[string]bool{
	"RED_1": true, "RED_2": true,
	"BLUE_1": true, "BLUE_2": true,
	"GREEN_1": true, "GREEN_2": true,
	"BLACK_1": true, "BLACK_2": true,
	"PURPLE_1": true, "PURPLE_2": true,
	"ORANGE_1": true, "ORANGE_2": true,
}

// TableID 拼出工作台名称，例如 ("RED", 1) -> "RED_1"
func TableID(cell CellColor, tableNum int) string {
	return string(cell) + "_" + strconv.Itoa(tableNum)
}

// SplitTableID 把 "RED_1" 拆成 ("RED", 1)；格式非法时返回 false
func SplitTableID(tableID string) (CellColor, int, bool) {
	if !ValidTables[tableID] {
		return "", 0, false
	}
	n := len(tableID)
	num := int(tableID[n-1] - '0')
	return CellColor(tableID[:n-2]), num, true
}

// Job: 每日生产负荷中的一条工单
type Job struct {
	ReqBy          time.Time `json:"reqBy"`
	JobID          string    `json:"jobID"`
	Description    string    `json:"description"`
	Pattern        Pattern   `json:"pattern"`
	OpeningSize    float64   `json:"openingSize"`
	WireDiameter   float64   `json:"wireDiameter"`
	Molds          int       `json:"molds"`
	MoldType       MoldType  `json:"moldType"`
	ProdQty        int       `json:"prodQty"`
	Equivalent     float64   `json:"equivalent"`
	OrangeEligible bool      `json:"orangeEligible"`

	// 操作员每日录入的覆盖字段
	OnTableToday      string `json:"onTableToday,omitempty"`
	QuantityRemaining int    `json:"quantityRemaining,omitempty"`
	Expedite          bool   `json:"expedite,omitempty"`

	// 来源行号，用于报错定位
	Row int `json:"-"`
}

// FixtureID: 样式-开口尺寸-线径，例如 "D-0.0938-1.4"
func (j *Job) FixtureID() string {
	return string(j.Pattern) + "-" +
		strconv.FormatFloat(j.OpeningSize, 'f', -1, 64) + "-" +
		strconv.FormatFloat(j.WireDiameter, 'f', -1, 64)
}

// SchedQty: 已上台的工单按剩余数量排程，否则按生产数量
func (j *Job) SchedQty() int {
	if j.OnTableToday != "" && j.QuantityRemaining > 0 {
		return j.QuantityRemaining
	}
	return j.ProdQty
}
