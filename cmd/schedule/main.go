package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/scheduler"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/utils"
)

// jobFile: 工单 JSON 文件里的一条记录，日期用 2006-01-02 字符串
type jobFile struct {
	ReqBy             string  `json:"reqBy"`
	JobID             string  `json:"jobID"`
	Description       string  `json:"description"`
	Pattern           string  `json:"pattern"`
	OpeningSize       float64 `json:"openingSize"`
	WireDiameter      float64 `json:"wireDiameter"`
	Molds             int     `json:"molds"`
	MoldType          string  `json:"moldType"`
	ProdQty           int     `json:"prodQty"`
	Equivalent        float64 `json:"equivalent"`
	OrangeEligible    bool    `json:"orangeEligible"`
	OnTableToday      string  `json:"onTableToday"`
	QuantityRemaining int     `json:"quantityRemaining"`
	Expedite          bool    `json:"expedite"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var (
		constantsPath = flag.String("constants", "./constants.yaml", "排程常量 YAML 文件")
		jobsPath      = flag.String("jobs", "./jobs.json", "日负荷工单 JSON 文件")
		dateFlag      = flag.String("date", "", "排程日 (2006-01-02)，默认今天")
		shiftFlag     = flag.String("shift", domain.ShiftStandard, "班次: standard 或 overtime")
		cellsFlag     = flag.String("cells", "RED,BLUE,GREEN,BLACK,PURPLE", "启用单元，逗号分隔")
		summerFlag    = flag.Bool("summer", false, "夏季固化时长系数")
		orangeFlag    = flag.Bool("orange", false, "放行 ORANGE 单元")
	)
	flag.Parse()

	constants, err := domain.LoadConstants(*constantsPath)
	if err != nil {
		logger.Error("无法加载排程常量", "error", err)
		os.Exit(1)
	}

	raw, err := os.ReadFile(*jobsPath)
	if err != nil {
		logger.Error("无法读取工单文件", "error", err)
		os.Exit(1)
	}
	var fileJobs []jobFile
	if err := json.Unmarshal(raw, &fileJobs); err != nil {
		logger.Error("工单文件格式错误", "error", err)
		os.Exit(1)
	}

	scheduleDate := time.Now()
	if *dateFlag != "" {
		scheduleDate, err = time.Parse("2006-01-02", *dateFlag)
		if err != nil {
			logger.Error("排程日格式应为 2006-01-02", "error", err)
			os.Exit(1)
		}
	}

	var activeCells []domain.CellColor
	for _, c := range strings.Split(*cellsFlag, ",") {
		if c = strings.TrimSpace(c); c != "" {
			activeCells = append(activeCells, domain.CellColor(strings.ToUpper(c)))
		}
	}

	inputs := &domain.RunInputs{
		ScheduleDate:  scheduleDate,
		ActiveCells:   activeCells,
		ShiftType:     *shiftFlag,
		OrangeEnabled: *orangeFlag,
		SummerMode:    *summerFlag,
	}

	jobs := make([]*domain.Job, 0, len(fileJobs))
	for i, fj := range fileJobs {
		reqBy, err := time.Parse("2006-01-02", fj.ReqBy)
		if err != nil {
			logger.Error("交付日期格式错误", "row", i+1, "error", err)
			os.Exit(1)
		}
		jobs = append(jobs, &domain.Job{
			ReqBy:             reqBy,
			JobID:             fj.JobID,
			Description:       fj.Description,
			Pattern:           domain.Pattern(fj.Pattern),
			OpeningSize:       fj.OpeningSize,
			WireDiameter:      fj.WireDiameter,
			Molds:             fj.Molds,
			MoldType:          domain.MoldType(fj.MoldType),
			ProdQty:           fj.ProdQty,
			Equivalent:        fj.Equivalent,
			OrangeEligible:    fj.OrangeEligible,
			OnTableToday:      fj.OnTableToday,
			QuantityRemaining: fj.QuantityRemaining,
			Expedite:          fj.Expedite,
			Row:               i + 1,
		})
	}

	warnings, err := utils.ValidateProductionLoad(jobs, constants, inputs)
	if err != nil {
		logger.Error("输入校验失败", "error", err)
		os.Exit(1)
	}
	for _, w := range warnings {
		logger.Warn(w)
	}

	engine, err := scheduler.New(constants, inputs, jobs, scheduler.Parameters{})
	if err != nil {
		logger.Error("无法创建排程引擎", "error", err)
		os.Exit(1)
	}

	run, err := engine.Run(context.Background())
	if err != nil {
		logger.Error("排程失败", "error", err)
		os.Exit(1)
	}

	printReport(run)
}

func printReport(run *domain.ScheduleRun) {
	fmt.Println(strings.Repeat("=", 78))
	fmt.Printf("排程日 %s  班次 %d 分钟\n", run.ScheduleDate.Format("2006-01-02"), run.ShiftMinutes)
	fmt.Println(strings.Repeat("=", 78))

	fmt.Printf("%-22s %-14s %6s %6s %6s %8s %8s\n", "方法", "变体", "面板", "排入", "未排", "落排", "台空闲")
	fmt.Println(strings.Repeat("-", 78))
	for _, s := range run.Summaries {
		fmt.Printf("%-22s %-14s %6d %6d %6d %8d %8d\n",
			s.Method, s.Variant, s.TotalPanels, s.JobsScheduled, s.JobsUnscheduled, s.MissedDates, s.ForcedTableIdle)
	}

	fmt.Println()
	fmt.Printf("推荐方案: %s / %s\n", run.RecommendedMethod, run.RecommendedVariant)

	for _, color := range domain.CellColors {
		cell, exists := run.Cells[color]
		if !exists {
			continue
		}
		fmt.Printf("\n[%s] 操作员强制空闲 %d 分钟\n", color, cell.ForcedOperatorIdle)
		printTable(cell.Table1)
		printTable(cell.Table2)
		for _, b := range cell.MoldBorrows {
			fmt.Printf("  借用 %d × %s (工单 %s)\n", b.Count, b.MoldName, b.JobID)
		}
	}

	if len(run.Unscheduled) > 0 {
		fmt.Println("\n未排工单:")
		for _, u := range run.Unscheduled {
			fmt.Printf("  %s (%s)\n", u.JobID, u.Reason)
		}
	}
	for _, w := range run.Warnings {
		fmt.Printf("告警: %s\n", w)
	}
}

func printTable(t domain.TableSchedule) {
	fmt.Printf("  %s: %d 个面板，台面强制空闲 %d 分钟\n", t.TableID, len(t.Panels), t.ForcedIdle)
	for _, p := range t.Panels {
		fmt.Printf("    %s #%d  SETUP %d-%d  LAYOUT %d-%d  POUR %d-%d  CURE %d-%d  UNLOAD %d-%d\n",
			p.JobID, p.Index,
			p.Setup.Start, p.Setup.End,
			p.Layout.Start, p.Layout.End,
			p.Pour.Start, p.Pour.End,
			p.Cure.Start, p.Cure.End,
			p.Unload.Start, p.Unload.End)
	}
	if t.Prep != nil {
		fmt.Printf("    %s 预备面板  SETUP %d-%d  LAYOUT %d-%d（明日浇注）\n",
			t.Prep.JobID, t.Prep.Setup.Start, t.Prep.Setup.End, t.Prep.Layout.Start, t.Prep.Layout.End)
	}
}
