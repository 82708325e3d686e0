package schema

// ExecutiveEntry identifies one company participant on the call.
type ExecutiveEntry struct {
	ExecutiveName string `json:"executive_name"`
	Role          string `json:"role"`
}

// GuidanceItem is one forward-looking metric mentioned on the call.
type GuidanceItem struct {
	PeriodLabel       string `json:"period_label"`
	MetricName        string `json:"metric_name"`
	MetricDescription string `json:"metric_description"`
}

// Overview is the call overview artifact: who spoke, what the call covered,
// and any guidance given.
type Overview struct {
	ExecutivesList  []ExecutiveEntry `json:"executives_list"`
	Overview        string           `json:"overview"`
	GuidanceOutlook []GuidanceItem   `json:"guidance_outlook,omitempty"`
}

func overviewSchema() map[string]any {
	executive := obj(map[string]any{
		"executive_name": str(),
		"role":           str(),
	}, "executive_name", "role")

	guidance := obj(map[string]any{
		"period_label":       str(),
		"metric_name":        str(),
		"metric_description": str(),
	}, "period_label", "metric_name", "metric_description")

	return obj(map[string]any{
		"executives_list":  arr(executive),
		"overview":         str(),
		"guidance_outlook": nullable(arr(guidance)),
	}, "executives_list", "overview", "guidance_outlook")
}
