package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/tinkerbelle-io/kube-medic/internal/policy"
)

// formatValue renders a metric value in its natural unit.
func formatValue(t policy.IssueType, v float64) string {
	if t == policy.IssueMemory {
		return fmt.Sprintf("%.0f bytes (%.1f MiB)", v, v/(1<<20))
	}
	return fmt.Sprintf("%.2f%%", v)
}

func remediationIssueTitle(is policy.Issue) string {
	return fmt.Sprintf("%s usage alert for pod %s", strings.ToUpper(string(is.Type)), is.PodName)
}

func remediationIssueBody(is policy.Issue, restartCount int, detectedAt int64) string {
	kind := strings.ToUpper(string(is.Type))
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Usage Alert\n\n", kind)
	b.WriteString("## Pod Information\n")
	fmt.Fprintf(&b, "- **Pod Name**: %s\n", is.PodName)
	fmt.Fprintf(&b, "- **Namespace**: %s\n", is.Namespace)
	fmt.Fprintf(&b, "- **Severity**: %s\n\n", is.Severity)
	b.WriteString("## Metrics\n")
	fmt.Fprintf(&b, "- **%s Usage**: %s\n", kind, formatValue(is.Type, is.Value))
	fmt.Fprintf(&b, "- **Threshold**: %s\n", formatValue(is.Type, is.Threshold))
	fmt.Fprintf(&b, "- **Timestamp**: %s\n\n", time.Unix(detectedAt, 0).UTC().Format("2006-01-02 15:04:05 MST"))
	b.WriteString("## Action Taken\n")
	b.WriteString("The pod has been automatically restarted to mitigate the issue.\n\n")
	b.WriteString("## Restart Count\n")
	fmt.Fprintf(&b, "This pod has been restarted %d times today.\n\n", restartCount)
	b.WriteString("## Next Steps\n")
	b.WriteString("If this issue persists, consider:\n")
	b.WriteString("1. Investigating the application logs\n")
	b.WriteString("2. Checking for memory leaks or inefficient code\n")
	b.WriteString("3. Adjusting resource limits\n")
	return b.String()
}

func remediationAnnotationText(is policy.Issue) string {
	return fmt.Sprintf("Pod %s restarted due to high %s usage (%s)", is.PodName, is.Type, formatValue(is.Type, is.Value))
}

func analysisAnnotationText(is policy.Issue) string {
	return fmt.Sprintf("Code analysis for pod %s due to persistent high %s usage", is.PodName, is.Type)
}

func issueContext(b *strings.Builder, is policy.Issue, logs, code string) {
	b.WriteString("# Issue Information\n")
	fmt.Fprintf(b, "- Pod Name: %s\n", is.PodName)
	fmt.Fprintf(b, "- Namespace: %s\n", is.Namespace)
	fmt.Fprintf(b, "- Issue Type: %s (high usage)\n", is.Type)
	fmt.Fprintf(b, "- This pod has been restarted multiple times today due to high %s usage\n\n", is.Type)
	b.WriteString("# Pod Logs\n```\n")
	b.WriteString(logs)
	b.WriteString("\n```\n\n# Application Code\n```\n")
	b.WriteString(code)
	b.WriteString("\n```\n\n")
}

// fixPrompt asks for the complete replacement code only.
func fixPrompt(is policy.Issue, logs, code string) string {
	var b strings.Builder
	b.WriteString("You are analyzing logs and application code to provide a complete code fix for a Kubernetes pod.\n\n")
	issueContext(&b, is, logs, code)
	b.WriteString("# Task\n")
	fmt.Fprintf(&b, "1. Identify patterns or defects in the logs and code that cause high %s usage.\n", is.Type)
	b.WriteString("2. Provide a COMPLETE code fix that resolves the issue.\n")
	b.WriteString("3. Respond with the ENTIRE function or class that needs to change, with all changes applied.\n")
	b.WriteString("4. Do not include explanations, JSON or anything else.\n\n")
	b.WriteString("Respond with ONLY the complete updated code.\n")
	return b.String()
}

// analysisPrompt asks for the structured proposal built around the fix.
func analysisPrompt(is policy.Issue, logs, code, fix string) string {
	var b strings.Builder
	b.WriteString("You are analyzing logs, application code and a generated code fix for a Kubernetes pod.\n\n")
	issueContext(&b, is, logs, code)
	b.WriteString("# Generated Code Fix\n```\n")
	b.WriteString(fix)
	b.WriteString("\n```\n\n# Task\n")
	b.WriteString("Respond with a JSON object with these string fields:\n")
	b.WriteString(`- "analysis": detailed analysis of the logs, code and the issue` + "\n")
	b.WriteString(`- "fix_description": a clear description of the proposed fix` + "\n")
	b.WriteString(`- "fix_code": the COMPLETE code fix (use the generated code fix above)` + "\n")
	b.WriteString(`- "fix_file": the repository path of the file to modify` + "\n")
	b.WriteString(`- "pr_title": a title for the pull request` + "\n")
	b.WriteString(`- "pr_body": a detailed description for the pull request` + "\n\n")
	b.WriteString("Respond with only the JSON object, no additional text.\n")
	return b.String()
}

func analysisIssueTitle(is policy.Issue) string {
	return fmt.Sprintf("Analysis: %s usage in pod %s", strings.ToUpper(string(is.Type)), is.PodName)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func analysisIssueBody(is policy.Issue, p FixProposal) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s Usage Analysis\n\n", strings.ToUpper(string(is.Type)))
	b.WriteString("## Pod Information\n")
	fmt.Fprintf(&b, "- **Pod Name**: %s\n", is.PodName)
	fmt.Fprintf(&b, "- **Namespace**: %s\n\n", is.Namespace)
	fmt.Fprintf(&b, "## Analysis\n%s\n\n", orDefault(p.Analysis, "No analysis available"))
	fmt.Fprintf(&b, "## Proposed Fix\n%s\n\n", orDefault(p.FixDescription, "No fix description available"))
	fmt.Fprintf(&b, "### Code Change\n```\n%s\n```\n\n", orDefault(p.FixCode, "No code change available"))
	fmt.Fprintf(&b, "### File to Modify\n%s\n\n", orDefault(p.FixFile, "Unknown"))
	b.WriteString("## Next Steps\nA pull request will be created with the proposed fix.\n")
	return b.String()
}

func commitMessage(is policy.Issue) string {
	return fmt.Sprintf("Fix high %s usage in %s", is.Type, is.PodName)
}

func pullRequestTitle(is policy.Issue, p FixProposal) string {
	return orDefault(p.PRTitle, commitMessage(is))
}

// pullRequestBody uses the proposal's body when present and always references
// the issue it closes.
func pullRequestBody(is policy.Issue, p FixProposal, issueNumber int) string {
	closes := fmt.Sprintf("Closes #%d", issueNumber)
	if body := strings.TrimSpace(p.PRBody); body != "" {
		if strings.Contains(body, fmt.Sprintf("#%d", issueNumber)) {
			return body
		}
		return body + "\n\n## Related Issue\n" + closes + "\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "# Fix for high %s usage in %s\n\n", is.Type, is.PodName)
	fmt.Fprintf(&b, "This PR addresses the high %s usage issue in pod %s.\n\n", is.Type, is.PodName)
	fmt.Fprintf(&b, "## Analysis\n%s\n\n", orDefault(p.Analysis, "No analysis available"))
	fmt.Fprintf(&b, "## Changes\n%s\n\n", orDefault(p.FixDescription, "No fix description available"))
	fmt.Fprintf(&b, "## Related Issue\n%s\n", closes)
	return b.String()
}
