package scheduler

import (
	"math"
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
)

// calculateFields 为单个工单计算全部派生字段。
// 纯函数，每次运行只执行一次；对已经算过的工单重新调用会得到相同结果。
func calculateFields(job *domain.Job, constants *domain.CycleTimeConstants, today time.Time) (calcFields, error) {
	timing, err := constants.GetTaskTiming(job.WireDiameter, job.Equivalent)
	if err != nil {
		return calcFields{}, err
	}

	schedQty := job.SchedQty()

	// BUILD_LOAD = SCHED_QTY × EQUIVALENT ÷ SCHED_CONSTANT，保留两位小数
	buildLoad := float64(schedQty) * job.Equivalent / float64(timing.SchedConstant)
	buildLoad = math.Round(buildLoad*100) / 100

	// BUILD_DATE = REQ_BY 往前推 ROUNDUP(BUILD_LOAD + PULL_AHEAD) 个工作日
	leadDays := int(math.Ceil(buildLoad + timing.PullAhead))
	buildDate := subtractBusinessDays(job.ReqBy, leadDays, constants)

	return calcFields{
		jobID:         job.JobID,
		schedQty:      schedQty,
		buildLoad:     buildLoad,
		buildDate:     buildDate,
		priority:      priorityOf(buildDate, today, job.Expedite),
		fixtureID:     job.FixtureID(),
		moldDepth:     domain.MoldDepthOf(job.WireDiameter),
		schedClass:    timing.SchedClass,
		pullAhead:     timing.PullAhead,
		schedConstant: timing.SchedConstant,
	}, nil
}

// priorityOf 根据 BUILD_DATE 和加急标记得出优先级 0-3
func priorityOf(buildDate, today time.Time, expedite bool) int {
	// 只比较日历日，忽略时刻
	bd := buildDate.Format("2006-01-02")
	td := today.Format("2006-01-02")

	switch {
	case bd < td:
		return priorityPastDue
	case bd == td:
		if expedite {
			return priorityPastDue
		}
		return priorityToday
	case expedite:
		return priorityExpedite
	default:
		return priorityFuture
	}
}

// subtractBusinessDays 往前推 days 个工作日，跳过周末和假期
func subtractBusinessDays(from time.Time, days int, constants *domain.CycleTimeConstants) time.Time {
	if days <= 0 {
		return from
	}

	result := from
	remaining := days
	for remaining > 0 {
		result = result.AddDate(0, 0, -1)
		if !constants.IsBusinessDay(result) {
			continue
		}
		remaining--
	}
	return result
}
