package domain

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type CellColor string

const (
	CellRed    CellColor = "RED"
	CellBlue   CellColor = "BLUE"
	CellGreen  CellColor = "GREEN"
	CellBlack  CellColor = "BLACK"
	CellPurple CellColor = "PURPLE"
	CellOrange CellColor = "ORANGE"
)

// CellColors: 六个产线颜色，顺序固定
var CellColors = []CellColor{CellRed, CellBlue, CellGreen, CellBlack, CellPurple, CellOrange}

type MoldDepth string

const (
	MoldDepthDeep MoldDepth = "DEEP"
	MoldDepthStd  MoldDepth = "STD"
)

type Pattern string

const (
	PatternD Pattern = "D"
	PatternV Pattern = "V"
	PatternS Pattern = "S"
)

type SchedClass string

const (
	SchedClassA SchedClass = "A"
	SchedClassB SchedClass = "B"
	SchedClassC SchedClass = "C"
	SchedClassD SchedClass = "D"
	SchedClassE SchedClass = "E"
)

// 固定模具名称
const (
	MoldDeep          = "DEEP_MOLD"
	MoldCommon        = "COMMON_MOLD"
	MoldDouble2CC     = "DOUBLE2CC_MOLD"
	Mold3InUrethane   = "3INURETHANE_MOLD"
	MoldDeepDouble2CC = "DEEP_DOUBLE2CC_MOLD"
)

// ColorMoldName 返回某个产线颜色对应的专属模具名称
func ColorMoldName(c CellColor) string {
	return string(c) + "_MOLD"
}

// 线径分档，用于工时表查询
const (
	WireBandThin  = "<=4"
	WireBandMid   = ">4,<8"
	WireBandThick = ">=8"
)

func WireBandOf(wireDiameter float64) string {
	switch {
	case wireDiameter <= 4:
		return WireBandThin
	case wireDiameter < 8:
		return WireBandMid
	default:
		return WireBandThick
	}
}

// MoldDepthOf: 线径 >= 8 时必须使用深模
func MoldDepthOf(wireDiameter float64) MoldDepth {
	if wireDiameter >= 8 {
		return MoldDepthDeep
	}
	return MoldDepthStd
}

// TaskTiming: 工时表中的一行，按 (线径分档, 难度系数档位) 查询
type TaskTiming struct {
	WireDiameter  string     `yaml:"wire_diameter"`
	Equivalent    string     `yaml:"equivalent"` // "1.0" / "1.25" / ... / ">=2"
	Setup         int        `yaml:"setup"`
	Layout        int        `yaml:"layout"`
	PourPerMold   float64    `yaml:"pour_per_mold"`
	Cure          int        `yaml:"cure"`
	Unload        int        `yaml:"unload"`
	SchedConstant int        `yaml:"sched_constant"`
	SchedClass    SchedClass `yaml:"sched_class"`
	PullAhead     float64    `yaml:"pull_ahead"`
}

type MoldInfo struct {
	Name           string
	Depth          MoldDepth
	WireDiameter   string
	Quantity       int
	CompliantCells map[CellColor]bool
}

type FixtureLimit struct {
	Pattern       Pattern
	Description   string
	MaxConcurrent int
}

type Holiday struct {
	Label string
	Date  time.Time
}

// CycleTimeConstants: 从 YAML 配置文件加载的全部排程常量
type CycleTimeConstants struct {
	TaskTimings []TaskTiming
	Molds       map[string]MoldInfo
	Fixtures    map[Pattern]FixtureLimit
	Holidays    map[string]struct{} // 以 "2006-01-02" 为键
	HolidayList []Holiday
	Shifts      map[string]int

	SummerCureMultiplier float64
	PourCutoffMinutes    int
}

// equivalentTier 将难度系数向上取整到下一个档位（保守排程）
// 档位：1.0、1.25、1.5、1.75、>=2；恰好落在档位上不取整
func equivalentTier(equivalent float64) float64 {
	switch {
	case equivalent <= 1.0:
		return 1.0
	case equivalent <= 1.25:
		return 1.25
	case equivalent <= 1.5:
		return 1.5
	case equivalent <= 1.75:
		return 1.75
	default:
		return 2.0 // 匹配 ">=2"
	}
}

// GetTaskTiming 按线径和难度系数查询工时表。
// 查不到时返回错误（constants-lookup-miss）。
func (c *CycleTimeConstants) GetTaskTiming(wireDiameter, equivalent float64) (TaskTiming, error) {
	band := WireBandOf(wireDiameter)
	target := equivalentTier(equivalent)

	for _, t := range c.TaskTimings {
		if t.WireDiameter != band {
			continue
		}
		if target >= 2.0 && t.Equivalent == ">=2" {
			return t, nil
		}
		if t.Equivalent != ">=2" {
			v, err := strconv.ParseFloat(t.Equivalent, 64)
			if err != nil {
				continue
			}
			if v-target < 0.01 && target-v < 0.01 {
				return t, nil
			}
		}
	}

	// 找不到精确档位时退到 ">=2" 行
	for _, t := range c.TaskTimings {
		if t.WireDiameter == band && t.Equivalent == ">=2" {
			return t, nil
		}
	}

	return TaskTiming{}, fmt.Errorf("工时表中不存在 wire_diameter=%v equivalent=%v 的组合", wireDiameter, equivalent)
}

func (c *CycleTimeConstants) GetFixtureLimit(pattern Pattern) (int, error) {
	f, exists := c.Fixtures[pattern]
	if !exists {
		return 0, fmt.Errorf("夹具表中不存在样式 %q，有效样式为 D、V、S", pattern)
	}
	return f.MaxConcurrent, nil
}

func (c *CycleTimeConstants) IsHoliday(d time.Time) bool {
	_, exists := c.Holidays[d.Format("2006-01-02")]
	return exists
}

// IsBusinessDay: 周一到周五且不是假期
func (c *CycleTimeConstants) IsBusinessDay(d time.Time) bool {
	wd := d.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(d)
}

func (c *CycleTimeConstants) ShiftMinutes(shiftType string) int {
	if m, exists := c.Shifts[shiftType]; exists {
		return m
	}
	if m, exists := c.Shifts["standard"]; exists {
		return m
	}
	return 440
}

// constantsFile 对应 YAML 文件的结构
type constantsFile struct {
	Shifts               map[string]int `yaml:"shifts"`
	SummerCureMultiplier float64        `yaml:"summer_cure_multiplier"`
	PourCutoffMinutes    int            `yaml:"pour_cutoff_minutes"`
	TaskTimings          []TaskTiming   `yaml:"task_timings"`
	Molds                []struct {
		Name         string             `yaml:"name"`
		Depth        MoldDepth          `yaml:"depth"`
		WireDiameter string             `yaml:"wire_diameter"`
		Quantity     int                `yaml:"quantity"`
		Cells        map[CellColor]bool `yaml:"cells"`
	} `yaml:"molds"`
	Fixtures []struct {
		Pattern     Pattern `yaml:"pattern"`
		Description string  `yaml:"description"`
		Quantity    int     `yaml:"quantity"`
	} `yaml:"fixtures"`
	Holidays []struct {
		Label string `yaml:"label"`
		Date  string `yaml:"date"`
	} `yaml:"holidays"`
}

// LoadConstants 从 YAML 文件加载排程常量
func LoadConstants(path string) (*CycleTimeConstants, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取常量文件 %s: %w", path, err)
	}
	return ParseConstants(raw)
}

func ParseConstants(raw []byte) (*CycleTimeConstants, error) {
	file := constantsFile{}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("常量文件格式错误: %w", err)
	}

	c := &CycleTimeConstants{
		TaskTimings:          file.TaskTimings,
		Molds:                make(map[string]MoldInfo),
		Fixtures:             make(map[Pattern]FixtureLimit),
		Holidays:             make(map[string]struct{}),
		Shifts:               file.Shifts,
		SummerCureMultiplier: file.SummerCureMultiplier,
		PourCutoffMinutes:    file.PourCutoffMinutes,
	}

	if c.Shifts == nil {
		c.Shifts = map[string]int{"standard": 440, "overtime": 500}
	}
	if c.SummerCureMultiplier == 0 {
		c.SummerCureMultiplier = 1.5
	}
	if c.PourCutoffMinutes == 0 {
		c.PourCutoffMinutes = 40
	}

	for _, m := range file.Molds {
		compliant := make(map[CellColor]bool)
		for cell, ok := range m.Cells {
			if ok {
				compliant[cell] = true
			}
		}
		c.Molds[m.Name] = MoldInfo{
			Name:           m.Name,
			Depth:          m.Depth,
			WireDiameter:   m.WireDiameter,
			Quantity:       m.Quantity,
			CompliantCells: compliant,
		}
	}

	for _, f := range file.Fixtures {
		c.Fixtures[f.Pattern] = FixtureLimit{
			Pattern:       f.Pattern,
			Description:   f.Description,
			MaxConcurrent: f.Quantity,
		}
	}

	for _, h := range file.Holidays {
		d, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			return nil, fmt.Errorf("假期 %q 的日期格式错误: %w", h.Label, err)
		}
		c.HolidayList = append(c.HolidayList, Holiday{Label: h.Label, Date: d})
		c.Holidays[h.Date] = struct{}{}
	}

	return c, nil
}

// SaveConstants 将排程常量写回 YAML 文件（设置页流程在本仓库之外，这里只负责序列化）
func SaveConstants(c *CycleTimeConstants, path string) error {
	file := constantsFile{
		Shifts:               c.Shifts,
		SummerCureMultiplier: c.SummerCureMultiplier,
		PourCutoffMinutes:    c.PourCutoffMinutes,
		TaskTimings:          c.TaskTimings,
	}

	for _, name := range sortedMoldNames(c.Molds) {
		m := c.Molds[name]
		cells := make(map[CellColor]bool, len(CellColors))
		for _, cell := range CellColors {
			cells[cell] = m.CompliantCells[cell]
		}
		file.Molds = append(file.Molds, struct {
			Name         string             `yaml:"name"`
			Depth        MoldDepth          `yaml:"depth"`
			WireDiameter string             `yaml:"wire_diameter"`
			Quantity     int                `yaml:"quantity"`
			Cells        map[CellColor]bool `yaml:"cells"`
		}{Name: m.Name, Depth: m.Depth, WireDiameter: m.WireDiameter, Quantity: m.Quantity, Cells: cells})
	}

	for _, p := range []Pattern{PatternD, PatternS, PatternV} {
		if f, exists := c.Fixtures[p]; exists {
			file.Fixtures = append(file.Fixtures, struct {
				Pattern     Pattern `yaml:"pattern"`
				Description string  `yaml:"description"`
				Quantity    int     `yaml:"quantity"`
			}{Pattern: f.Pattern, Description: f.Description, Quantity: f.MaxConcurrent})
		}
	}

	for _, h := range c.HolidayList {
		file.Holidays = append(file.Holidays, struct {
			Label string `yaml:"label"`
			Date  string `yaml:"date"`
		}{Label: h.Label, Date: h.Date.Format("2006-01-02")})
	}

	raw, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("无法序列化常量: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("无法写入常量文件 %s: %w", path, err)
	}
	return nil
}

func sortedMoldNames(molds map[string]MoldInfo) []string {
	names := make([]string, 0, len(molds))
	for name := range molds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
