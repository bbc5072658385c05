package domain

// NotifyMessage: 通过 RabbitMQ 投递给 notify worker 的消息
type NotifyMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

// ScheduleReadyData: 排程完成通知邮件的数据
type ScheduleReadyData struct {
	ScheduleDate       string `json:"scheduleDate"`
	RecommendedMethod  string `json:"recommendedMethod"`
	RecommendedVariant string `json:"recommendedVariant"`
	TotalPanels        int    `json:"totalPanels"`
	MissedDates        int    `json:"missedDates"`
	JobsUnscheduled    int    `json:"jobsUnscheduled"`
}
