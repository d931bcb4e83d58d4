package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tickrify1/tickrify.com-sub000/app/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	boxStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(1, 2).
			Width(72)

	buyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	sellStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	holdStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Width(14)
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func recommendationStyle(r models.Recommendation) lipgloss.Style {
	switch r {
	case models.RecommendationBuy:
		return buyStyle
	case models.RecommendationSell:
		return sellStyle
	}
	return holdStyle
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func renderAnalysis(a models.Analysis) string {
	lines := []string{
		titleStyle.Render("Analysis " + a.Symbol),
		row("Signal", recommendationStyle(a.Recommendation).Render(string(a.Recommendation))),
		row("Confidence", fmt.Sprintf("%d%%", a.Confidence)),
		row("Target", fmt.Sprintf("%.2f", a.TargetPrice)),
		row("Stop", fmt.Sprintf("%.2f", a.StopLoss)),
		row("Timeframe", a.Timeframe),
	}
	if a.RiskManagement != nil {
		lines = append(lines, row("Risk/Reward", a.RiskManagement.RiskReward))
	}
	lines = append(lines, "", a.Reasoning)
	for _, ind := range a.TechnicalIndicators {
		lines = append(lines, mutedStyle.Render(fmt.Sprintf("  %s: %s (%s)", ind.Name, ind.Value, ind.Signal)))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderPlans(plans []models.Plan) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Plans"))
	for _, p := range plans {
		limit := "unlimited"
		if p.MonthlyLimit != models.Unlimited {
			limit = fmt.Sprintf("%d analyses/month", p.MonthlyLimit)
		}
		fmt.Fprintf(&b, "\n%s  %s %s/%s  %s",
			lipgloss.NewStyle().Bold(true).Width(12).Render(p.Name),
			p.Price.StringFixed(2), strings.ToUpper(p.Currency), p.Interval,
			mutedStyle.Render(limit))
	}
	return boxStyle.Render(b.String())
}

func renderUsage(userID string, plan models.PlanType, month string, count, limit, remaining int) string {
	limitText, remainingText := "unlimited", "unlimited"
	if limit != models.Unlimited {
		limitText = fmt.Sprintf("%d", limit)
		remainingText = fmt.Sprintf("%d", remaining)
	}
	return boxStyle.Render(strings.Join([]string{
		titleStyle.Render("Usage " + month),
		row("User", userID),
		row("Plan", string(plan)),
		row("Used", fmt.Sprintf("%d", count)),
		row("Limit", limitText),
		row("Remaining", remainingText),
	}, "\n"))
}

func renderHistory(analyses []models.Analysis, signals []models.Signal) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Analyses (%d)", len(analyses))))
	for _, a := range analyses {
		fmt.Fprintf(&b, "\n%s  %-10s %s %d%%",
			mutedStyle.Render(a.Timestamp.Format("2006-01-02 15:04")),
			a.Symbol,
			recommendationStyle(a.Recommendation).Render(string(a.Recommendation)),
			a.Confidence)
	}
	b.WriteString("\n\n")
	b.WriteString(titleStyle.Render(fmt.Sprintf("Signals (%d)", len(signals))))
	for _, s := range signals {
		fmt.Fprintf(&b, "\n%s  %-10s %s @ %.2f",
			mutedStyle.Render(s.Timestamp.Format("2006-01-02 15:04")),
			s.Symbol,
			recommendationStyle(s.Type).Render(string(s.Type)),
			s.Price)
	}
	return boxStyle.Render(b.String())
}
