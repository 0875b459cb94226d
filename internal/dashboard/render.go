package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"newsoverlay/pkg/overlay"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4"))
	colHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dateStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	priceStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	volumeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	positiveStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	negativeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	neutralStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// colorStyle maps a marker color name to a terminal style.
func colorStyle(color string) lipgloss.Style {
	switch color {
	case "green":
		return positiveStyle
	case "red":
		return negativeStyle
	default:
		return neutralStyle
	}
}

// RenderChart renders the candles of a chart response as a table with one
// colored sentiment marker per day.
func RenderChart(c overlay.ChartResponse) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(" " + c.Title + " "))
	b.WriteByte('\n')
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("%-10s %10s %10s %10s %10s %8s %6s %5s",
		"Date", "Open", "High", "Low", "Close", "Volume", "Score", "News")))
	b.WriteByte('\n')

	for i, cd := range c.Candles {
		color := "gray"
		if i < len(c.Markers) {
			color = c.Markers[i].Color
		}
		style := colorStyle(color)

		b.WriteString(dateStyle.Render(fmt.Sprintf("%-10s", cd.Date)))
		b.WriteByte(' ')
		b.WriteString(priceStyle.Render(fmt.Sprintf("%10s %10s %10s %10s",
			FormatPrice(cd.Open), FormatPrice(cd.High), FormatPrice(cd.Low), FormatPrice(cd.Close))))
		b.WriteByte(' ')
		b.WriteString(volumeStyle.Render(fmt.Sprintf("%8s", FormatVolume(cd.Volume))))
		b.WriteByte(' ')
		b.WriteString(style.Render(fmt.Sprintf("%6s", FormatScore(cd.SentimentScore))))
		b.WriteByte(' ')
		b.WriteString(fmt.Sprintf("%5s", FormatInt(cd.NewsCount)))
		b.WriteByte(' ')
		b.WriteString(style.Render("◆"))
		b.WriteByte('\n')
	}
	return b.String()
}

// RenderNews renders the news detail table for one day, or its message when
// there are no rows.
func RenderNews(n overlay.NewsResponse, titleWidth int) string {
	if len(n.Rows) == 0 {
		return dimStyle.Render(n.Message) + "\n"
	}
	if titleWidth <= 0 {
		titleWidth = 60
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf(" %s news on %s ", n.Symbol, n.Date)))
	b.WriteByte('\n')
	b.WriteString(colHeaderStyle.Render(fmt.Sprintf("%-6s %-*s %-9s %s", "Ticker", titleWidth, "Headline", "Sentiment", "Link")))
	b.WriteByte('\n')

	for _, row := range n.Rows {
		b.WriteString(fmt.Sprintf("%-6s %-*s ", row.Ticker, titleWidth, Truncate(row.Title, titleWidth)))
		b.WriteString(colorStyle(row.Color).Render(fmt.Sprintf("%-9s", row.Sentiment)))
		b.WriteByte(' ')
		b.WriteString(dimStyle.Render(row.ArticleURL))
		b.WriteByte('\n')
		if row.Reasoning != "" {
			b.WriteString(dimStyle.Render("       " + row.Reasoning))
			b.WriteByte('\n')
		}
	}
	return b.String()
}
