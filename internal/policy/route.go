package policy

// Route is the branch the pipeline takes after the decide stage.
type Route string

const (
	RouteNoAction           Route = "no_action"
	RouteRemediate          Route = "remediate"
	RouteAnalyzeCode        Route = "analyze_code"
	RouteManualIntervention Route = "manual_intervention"
)

// Decide picks the route for an issue given the pod's restart count today.
// Escalation to code analysis wins over the daily restart cap.
func Decide(restartCount int, th Thresholds) Route {
	if restartCount >= th.AnalysisThreshold {
		return RouteAnalyzeCode
	}
	if th.EnforceMaxRestarts && restartCount >= th.MaxRestartsPerDay {
		return RouteManualIntervention
	}
	return RouteRemediate
}
