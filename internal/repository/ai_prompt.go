package repository

import (
	"fmt"
	"strings"

	"golang-stockbot/internal/model"
)

// PromptDailySummary asks for a short market commentary on the quotes a
// group follows.
func PromptDailySummary(groupName string, quotes []model.StockQuote) string {
	var sb strings.Builder

	sb.WriteString("You are a concise market analyst writing for a Telegram group")
	if groupName != "" {
		sb.WriteString(fmt.Sprintf(" called %q", groupName))
	}
	sb.WriteString(".\n\n")

	sb.WriteString(`### Task:
1. Summarise how the stocks below moved today in at most 5 short sentences.
2. Call out the biggest mover and whether the group's list is mostly up or down.
3. Do not give investment advice and do not invent numbers that are not in the data.
4. Plain text only, no markdown tables.
`)

	sb.WriteString("\n### Quotes:\n")
	for _, q := range quotes {
		sb.WriteString(fmt.Sprintf("- %s: price %.2f, change %+.2f (%+.2f%%), open %.2f, high %.2f, low %.2f, volume %d\n",
			q.Symbol, q.Price, q.Change, q.ChangePercent, q.Open, q.High, q.Low, q.Volume))
	}

	return sb.String()
}
