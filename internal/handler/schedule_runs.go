package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/repository"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/scheduler"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/utils"
)

type jobRequest struct {
	ReqBy             string  `json:"reqBy" validate:"required,datetime=2006-01-02"`
	JobID             string  `json:"jobID" validate:"required"`
	Description       string  `json:"description"`
	Pattern           string  `json:"pattern" validate:"required,oneof=D V S"`
	OpeningSize       float64 `json:"openingSize" validate:"required,gt=0"`
	WireDiameter      float64 `json:"wireDiameter" validate:"required,gt=0"`
	Molds             int     `json:"molds" validate:"required,gte=1"`
	MoldType          string  `json:"moldType" validate:"required,oneof=STANDARD DOUBLE2CC 3INURETHANE"`
	ProdQty           int     `json:"prodQty" validate:"required,gte=1"`
	Equivalent        float64 `json:"equivalent" validate:"required,gt=0"`
	OrangeEligible    bool    `json:"orangeEligible"`
	OnTableToday      string  `json:"onTableToday"`
	QuantityRemaining int     `json:"quantityRemaining" validate:"omitempty,gte=1"`
	Expedite          bool    `json:"expedite"`
}

type createScheduleRunRequest struct {
	ScheduleDate string             `json:"scheduleDate" validate:"required,datetime=2006-01-02"`
	ShiftType    string             `json:"shiftType" validate:"required,oneof=standard overtime"`
	ActiveCells  []domain.CellColor `json:"activeCells" validate:"required,min=1"`

	OrangeEnabled            bool `json:"orangeEnabled"`
	SummerMode               bool `json:"summerMode"`
	OrangeAllow3InUrethane   bool `json:"orangeAllow3InUrethane"`
	OrangeAllowDouble2CC     bool `json:"orangeAllowDouble2CC"`
	OrangeAllowDeepDouble2CC bool `json:"orangeAllowDeepDouble2CC"`

	Jobs []jobRequest `json:"jobs" validate:"required,min=1,dive"`
}

func (h *Handler) CreateScheduleRun(w http.ResponseWriter, r *http.Request) {
	req := createScheduleRunRequest{}
	if err := h.readJSON(r, &req); err != nil {
		h.errorResponse(w, r, "请求体格式错误")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	scheduleDate, _ := time.Parse("2006-01-02", req.ScheduleDate)

	inputs := &domain.RunInputs{
		ScheduleDate:             scheduleDate,
		ActiveCells:              req.ActiveCells,
		ShiftType:                req.ShiftType,
		OrangeEnabled:            req.OrangeEnabled,
		SummerMode:               req.SummerMode,
		OrangeAllow3InUrethane:   req.OrangeAllow3InUrethane,
		OrangeAllowDouble2CC:     req.OrangeAllowDouble2CC,
		OrangeAllowDeepDouble2CC: req.OrangeAllowDeepDouble2CC,
	}

	jobs := make([]*domain.Job, 0, len(req.Jobs))
	for i, jr := range req.Jobs {
		reqBy, _ := time.Parse("2006-01-02", jr.ReqBy)
		jobs = append(jobs, &domain.Job{
			ReqBy:             reqBy,
			JobID:             jr.JobID,
			Description:       jr.Description,
			Pattern:           domain.Pattern(jr.Pattern),
			OpeningSize:       jr.OpeningSize,
			WireDiameter:      jr.WireDiameter,
			Molds:             jr.Molds,
			MoldType:          domain.MoldType(jr.MoldType),
			ProdQty:           jr.ProdQty,
			Equivalent:        jr.Equivalent,
			OrangeEligible:    jr.OrangeEligible,
			OnTableToday:      jr.OnTableToday,
			QuantityRemaining: jr.QuantityRemaining,
			Expedite:          jr.Expedite,
			Row:               i + 1,
		})
	}

	// 业务校验：字段形状之外的跨字段规则
	warnings, err := utils.ValidateProductionLoad(jobs, h.constants, inputs)
	if err != nil {
		h.errorResponse(w, r, err.Error())
		return
	}

	engine, err := scheduler.New(h.constants, inputs, jobs, h.engineParameters())
	if err != nil {
		h.errorResponse(w, r, err.Error())
		return
	}

	run, err := engine.Run(r.Context())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	run.Warnings = append(warnings, run.Warnings...)

	// 入库，同一天重跑覆盖旧结果
	record := &repository.ScheduleRunRecord{
		ScheduleDate:       scheduleDate,
		ShiftMinutes:       run.ShiftMinutes,
		RecommendedMethod:  run.RecommendedMethod,
		RecommendedVariant: run.RecommendedVariant,
		Document:           run,
	}
	if err := h.repository.InsertScheduleRun(record); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.cacheScheduleRun(r.Context(), record)
	h.publishScheduleReady(run)

	h.successResponse(w, r, "排程完成", record)
}

func (h *Handler) GetScheduleRunByDate(w http.ResponseWriter, r *http.Request) {
	dateParam := chi.URLParam(r, "date")
	scheduleDate, err := time.Parse("2006-01-02", dateParam)
	if err != nil {
		h.errorResponse(w, r, "日期格式应为 2006-01-02")
		return
	}

	// 先查缓存
	if cached, err := h.redisClient.Get(r.Context(), scheduleRunCacheKey(scheduleDate)).Bytes(); err == nil {
		record := &repository.ScheduleRunRecord{}
		if err := json.Unmarshal(cached, record); err == nil {
			h.successResponse(w, r, "获取排程成功", record)
			return
		}
	}

	record, err := h.repository.GetScheduleRunByDate(scheduleDate)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			h.errorResponse(w, r, "这一天还没有排程结果")
		default:
			h.internalServerError(w, r, err)
		}
		return
	}

	h.cacheScheduleRun(r.Context(), record)
	h.successResponse(w, r, "获取排程成功", record)
}

func (h *Handler) GetAllScheduleRuns(w http.ResponseWriter, r *http.Request) {
	records, err := h.repository.GetAllScheduleRuns()
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	h.successResponse(w, r, "获取排程列表成功", records)
}

func (h *Handler) engineParameters() scheduler.Parameters {
	params := scheduler.Parameters{
		VariantTimeout: time.Duration(h.config.Engine.VariantTimeout) * time.Second,
	}
	for _, v := range strings.Split(h.config.Engine.Variants, ",") {
		if v = strings.TrimSpace(v); v != "" {
			params.Variants = append(params.Variants, v)
		}
	}
	return params
}

func scheduleRunCacheKey(scheduleDate time.Time) string {
	return "schedule_run:" + scheduleDate.Format("2006-01-02")
}

func (h *Handler) cacheScheduleRun(ctx context.Context, record *repository.ScheduleRunRecord) {
	raw, err := json.Marshal(record)
	if err != nil {
		return
	}
	expiration := time.Duration(h.config.Redis.ResultExpiration) * time.Second
	// 缓存失败不影响主流程
	_ = h.redisClient.Set(ctx, scheduleRunCacheKey(record.ScheduleDate), raw, expiration).Err()
}

// publishScheduleReady 把排程完成的消息丢进队列，由 notify worker 发邮件
func (h *Handler) publishScheduleReady(run *domain.ScheduleRun) {
	var best *domain.VariantSummary
	for i := range run.Summaries {
		s := &run.Summaries[i]
		if s.Method == run.RecommendedMethod && s.Variant == run.RecommendedVariant {
			best = s
			break
		}
	}
	if best == nil {
		return
	}

	message := domain.NotifyMessage{
		Type: "schedule_ready",
		To:   h.config.Email.Recipient,
		Data: domain.ScheduleReadyData{
			ScheduleDate:       run.ScheduleDate.Format("2006-01-02"),
			RecommendedMethod:  run.RecommendedMethod,
			RecommendedVariant: run.RecommendedVariant,
			TotalPanels:        best.TotalPanels,
			MissedDates:        best.MissedDates,
			JobsUnscheduled:    best.JobsUnscheduled,
		},
	}

	body, err := json.Marshal(message)
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(h.config.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	// 通知失败不影响排程结果返回
	_ = h.notifyChannel.PublishWithContext(ctx,
		"",
		"schedule_queue",
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
}
