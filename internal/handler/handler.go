package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/config"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/domain"
	"github.com/tfshop-dev/cell-scheduler/backend/internal/repository"
)

type Handler struct {
	validate      *validator.Validate
	config        *config.Config
	repository    *repository.Repository
	translator    ut.Translator
	constants     *domain.CycleTimeConstants
	notifyChannel *amqp.Channel
	redisClient   *redis.Client

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo *repository.Repository, constants *domain.CycleTimeConstants, notifyCh *amqp.Channel, rdb *redis.Client) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:      validate,
		config:        cfg,
		repository:    repo,
		translator:    trans,
		constants:     constants,
		notifyChannel: notifyCh,
		redisClient:   rdb,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	h.Mux.Route("/schedule-runs", func(r chi.Router) {
		r.Post("/", h.CreateScheduleRun)
		r.Get("/", h.GetAllScheduleRuns)
		r.Get("/{date}", h.GetScheduleRunByDate)
	})
}
