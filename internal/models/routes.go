package models

// Server-of-record routes shared by the tracker client and the reference server
const (
	RouteProgressSummary = "/api/progress/summary"
	RouteReportSummary   = "/api/report/summary"
	RouteSnapshot        = "/api/progress/snapshot"
	RouteHeartbeat       = "/api/progress/heartbeat"
	RouteCompleteCase    = "/api/complete_case"
	RouteCheckpoint      = "/api/user_timer_checkpoint"
	RouteReportSubmit    = "/api/report/submit"
	RouteCaseLogs        = "/api/case_logs"
)

// AccessCodeHeader carries the caller's identity on every request
const AccessCodeHeader = "X-Access-Code"
