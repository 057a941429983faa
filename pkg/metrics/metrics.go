package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Server Metrics

	// APIRequestsTotal API请求总数
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// APIRequestDuration API请求处理时长
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Workflow Metrics

	// RequestsSubmittedTotal 提交的申请总数（按模板类型）
	RequestsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_submitted_total",
			Help: "Total number of submitted requests",
		},
		[]string{"template_kind"},
	)

	// RequestsCompletedTotal 完成的申请总数（按终态）
	RequestsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_completed_total",
			Help: "Total number of requests reaching a terminal status",
		},
		[]string{"status"},
	)

	// ApprovalStepDecisionsTotal 审批步骤决策总数
	ApprovalStepDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_step_decisions_total",
			Help: "Total number of approval step decisions",
		},
		[]string{"decision"}, // approve / reject / auto_reject
	)

	// ApprovalStepDuration 审批步骤停留时长（从激活到完成）
	ApprovalStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "approval_step_duration_seconds",
			Help:    "Time an approval step spent in review",
			Buckets: []float64{60, 300, 1800, 3600, 14400, 86400, 259200, 604800},
		},
		[]string{"decision"},
	)

	// BulkApprovalBatchSize 批量审批的批次大小
	BulkApprovalBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bulk_approval_batch_size",
			Help:    "Number of steps per bulk approval call",
			Buckets: []float64{1, 2, 5, 10, 20, 50},
		},
	)

	// QuizEvaluationsTotal 审批测验评估总数
	QuizEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_evaluations_total",
			Help: "Total number of quiz evaluations",
		},
		[]string{"result"}, // passed / failed
	)

	// VacationDaysCommittedTotal 已入账的假期天数（按假期类型）
	VacationDaysCommittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vacation_days_committed_total",
			Help: "Total vacation days committed to the ledger",
		},
		[]string{"leave_type"},
	)

	// VacationDaysRevertedTotal 撤回已批假期时回滚的天数（按假期类型）
	VacationDaysRevertedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vacation_days_reverted_total",
			Help: "Total vacation days reverted from the ledger",
		},
		[]string{"leave_type"},
	)

	// VacationLedgerAdjustmentsTotal 管理员台账调整次数
	VacationLedgerAdjustmentsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vacation_ledger_adjustments_total",
			Help: "Total number of admin vacation ledger adjustments",
		},
	)

	// NotificationsDispatchedTotal 已派发的通知总数
	NotificationsDispatchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Total number of dispatched notifications",
		},
		[]string{"type"},
	)
)
