package utils

import (
	"fmt"
	"regexp"
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// 工单号格式：六位-一到两位-一位，例如 099457-1-1
var jobIDPattern = regexp.MustCompile(`^\d{6}-\d{1,2}-\d$`)

// ValidateJob 校验单个工单的字段形状和跨字段规则
func ValidateJob(job *domain.Job, constants *domain.CycleTimeConstants) error {
	if !jobIDPattern.MatchString(job.JobID) {
		return fmt.Errorf("%s: 第 %d 行的工单号 %q 不符合 NNNNNN-NN-N 格式", domain.FailInvalidInputField, job.Row, job.JobID)
	}

	if job.ReqBy.IsZero() {
		return fmt.Errorf("%s: 第 %d 行缺少交付日期", domain.FailInvalidInputField, job.Row)
	}

	if _, exists := constants.Fixtures[job.Pattern]; !exists {
		return fmt.Errorf("%s: 第 %d 行的样式 %q 不在夹具表中", domain.FailInvalidInputField, job.Row, job.Pattern)
	}

	if _, err := constants.GetTaskTiming(job.WireDiameter, job.Equivalent); err != nil {
		return fmt.Errorf("%s: 第 %d 行: %w", domain.FailConstantsLookupMiss, job.Row, err)
	}

	// DOUBLE2CC 的分解会扣掉两个本色模，模数必须至少为 2
	if job.MoldType == domain.MoldTypeDouble2CC && job.Molds < 2 {
		return fmt.Errorf("%s: 第 %d 行的 DOUBLE2CC 工单至少需要 2 个模具", domain.FailInvalidInputField, job.Row)
	}

	// 校验分解出的特殊模具在配置里存在
	depth := domain.MoldDepthOf(job.WireDiameter)
	req := requiredSpecialtyMold(job.MoldType, depth)
	if req != "" {
		if _, exists := constants.Molds[req]; !exists {
			return fmt.Errorf("%s: 模具表中没有 %s，无法排第 %d 行的工单", domain.FailConstantsLookupMiss, req, job.Row)
		}
	}

	if job.OnTableToday != "" {
		if !domain.ValidTables[job.OnTableToday] {
			return fmt.Errorf("%s: 第 %d 行的 ON_TABLE_TODAY %q 不是有效的工作台", domain.FailInvalidInputField, job.Row, job.OnTableToday)
		}
		if job.QuantityRemaining <= 0 {
			return fmt.Errorf("%s: 第 %d 行设置了 ON_TABLE_TODAY 却没有剩余数量", domain.FailInvalidInputField, job.Row)
		}
		if job.QuantityRemaining > job.ProdQty {
			return fmt.Errorf("%s: 第 %d 行的剩余数量 %d 超过生产数量 %d", domain.FailInvalidInputField, job.Row, job.QuantityRemaining, job.ProdQty)
		}
	}

	return nil
}

func requiredSpecialtyMold(moldType domain.MoldType, depth domain.MoldDepth) string {
	switch {
	case depth == domain.MoldDepthDeep && moldType != domain.MoldTypeStandard:
		return domain.MoldDeepDouble2CC
	case moldType == domain.MoldTypeDouble2CC:
		return domain.MoldDouble2CC
	case moldType == domain.MoldType3InUrethane:
		return domain.Mold3InUrethane
	}
	return ""
}

// ValidateProductionLoad 对整份日负荷做校验。
// 返回非致命告警列表；任何阻断性错误直接返回 error，排程不会开始。
func ValidateProductionLoad(jobs []*domain.Job, constants *domain.CycleTimeConstants, inputs *domain.RunInputs) ([]string, error) {
	if err := validateRunInputs(inputs, constants); err != nil {
		return nil, err
	}

	var warnings []string
	tablesInUse := make(map[string]string)

	for _, job := range jobs {
		if err := ValidateJob(job, constants); err != nil {
			return nil, err
		}

		if job.OnTableToday == "" {
			continue
		}

		// 同一张台不能同时钉两个工单
		if existing, used := tablesInUse[job.OnTableToday]; used {
			return nil, fmt.Errorf("%s: 工作台 %s 已被工单 %s 占用，工单 %s 不能再上", domain.FailInvalidInputField, job.OnTableToday, existing, job.JobID)
		}
		tablesInUse[job.OnTableToday] = job.JobID

		cell, _, _ := domain.SplitTableID(job.OnTableToday)

		if cell == domain.CellOrange && !job.OrangeEligible {
			warnings = append(warnings, fmt.Sprintf("工单 %s 不具备 ORANGE 资质却在 %s 上，按实际接受", job.JobID, job.OnTableToday))
		}
		if !inputs.IsCellActive(cell) {
			warnings = append(warnings, fmt.Sprintf("工单 %s 所在的 %s 单元今天停用，需要转移到其它单元", job.JobID, cell))
		}
		// 剩余数量超出单台一个班次的产能：接受并部分完成
		if timing, err := constants.GetTaskTiming(job.WireDiameter, job.Equivalent); err == nil {
			perPanel := timing.Setup + timing.Layout + int(timing.PourPerMold*float64(job.Molds)) + timing.Cure + timing.Unload
			if perPanel > 0 && job.QuantityRemaining*perPanel > inputs.ShiftMinutes() {
				warnings = append(warnings, fmt.Sprintf("工单 %s 的剩余数量 %d 超出单台一个班次的产能，将部分完成", job.JobID, job.QuantityRemaining))
			}
		}
	}

	if inputs.OrangeEnabled && !inputs.IsCellActive(domain.CellOrange) {
		warnings = append(warnings, "ORANGE 已放行但不在启用单元中，ORANGE 工单不会被排入")
	}

	return warnings, nil
}

func validateRunInputs(inputs *domain.RunInputs, constants *domain.CycleTimeConstants) error {
	if len(inputs.ActiveCells) == 0 {
		return fmt.Errorf("%s: 至少要有一个启用的单元", domain.FailInvalidInputField)
	}
	for _, cell := range inputs.ActiveCells {
		valid := false
		for _, known := range domain.CellColors {
			if cell == known {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("%s: 未知的单元颜色 %q", domain.FailInvalidInputField, cell)
		}
	}

	wd := inputs.ScheduleDate.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return fmt.Errorf("%s: 排程日 %s 是周末", domain.FailInvalidInputField, inputs.ScheduleDate.Format("2006-01-02"))
	}
	if constants.IsHoliday(inputs.ScheduleDate) {
		return fmt.Errorf("%s: 排程日 %s 是公司假期", domain.FailInvalidInputField, inputs.ScheduleDate.Format("2006-01-02"))
	}

	if inputs.ShiftType != domain.ShiftStandard && inputs.ShiftType != domain.ShiftOvertime {
		return fmt.Errorf("%s: 班次类型 %q 无效，应为 standard 或 overtime", domain.FailInvalidInputField, inputs.ShiftType)
	}

	return nil
}
