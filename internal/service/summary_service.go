package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/shopspring/decimal"

	"earthworks-ledger/internal/model"
)

var HebrewMonths = [12]string{
	"ינואר", "פברואר", "מרץ", "אפריל", "מאי", "יוני",
	"יולי", "אוגוסט", "ספטמבר", "אוקטובר", "נובמבר", "דצמבר",
}

// MonthSummary holds the totals of one month.
type MonthSummary struct {
	Year          int                 `json:"year"`
	Month         int                 `json:"month"`
	WorkDays      int                 `json:"workDays"`
	WorkTotal     decimal.Decimal     `json:"workTotal"`
	ExpenseTotal  decimal.Decimal     `json:"expenseTotal"`
	Net           decimal.Decimal     `json:"net"`
	Invoices      int                 `json:"invoices"`
	FollowUps     []model.CustomerRow `json:"followUps"`
	WorkDaySource Source              `json:"workDaySource"`
}

// SummaryService builds monthly totals for the bot and the API.
type SummaryService struct {
	sync     *SyncService
	invoices *InvoiceService
}

func NewSummaryService(syncer *SyncService, invoices *InvoiceService) *SummaryService {
	return &SummaryService{sync: syncer, invoices: invoices}
}

func (s *SummaryService) Month(ctx context.Context, year, month int) (MonthSummary, error) {
	sum := MonthSummary{Year: year, Month: month, FollowUps: []model.CustomerRow{}}

	p, err := model.NewPartition(model.CategoryWorkDays, year, month)
	if err != nil {
		return sum, err
	}
	doc, src, err := s.sync.Load(ctx, p)
	if err != nil {
		return sum, err
	}
	work := doc.(*model.WorkDays)
	sum.WorkDaySource = src
	sum.WorkTotal = model.SumCosts(work.Costs())
	for _, r := range work.Rows {
		if r.Text != "" || r.Cost != "" || r.Date != "" {
			sum.WorkDays++
		}
	}

	p.Category = model.CategoryExpenses
	doc, _, err = s.sync.Load(ctx, p)
	if err != nil {
		return sum, err
	}
	sum.ExpenseTotal = model.SumCosts(doc.(*model.Expenses).Costs())
	sum.Net = sum.WorkTotal.Sub(sum.ExpenseTotal)

	p.Category = model.CategoryCustomers
	doc, _, err = s.sync.Load(ctx, p)
	if err != nil {
		return sum, err
	}
	for _, r := range doc.(*model.Customers).Active {
		if !r.Empty() {
			sum.FollowUps = append(sum.FollowUps, r)
		}
	}

	list, _, err := s.invoices.List(ctx, month, year)
	if err != nil {
		return sum, err
	}
	sum.Invoices = len(list)
	return sum, nil
}

func formatMoney(d decimal.Decimal) string {
	return "₪" + d.StringFixed(2)
}

// Text renders the summary as Telegram HTML.
func (m MonthSummary) Text() string {
	var builder strings.Builder
	monthName := fmt.Sprint(m.Month)
	if m.Month >= 1 && m.Month <= 12 {
		monthName = HebrewMonths[m.Month-1]
	}
	builder.WriteString(fmt.Sprintf("📋 <b>סיכום %s %d</b>\n\n", monthName, m.Year))
	builder.WriteString(fmt.Sprintf("🚜 ימי עבודה: %d\n", m.WorkDays))
	builder.WriteString(fmt.Sprintf("💰 סה״כ עבודה: %s\n", formatMoney(m.WorkTotal)))
	builder.WriteString(fmt.Sprintf("🧾 סה״כ הוצאות: %s\n", formatMoney(m.ExpenseTotal)))
	builder.WriteString(fmt.Sprintf("📈 נטו: <b>%s</b>\n", formatMoney(m.Net)))
	builder.WriteString(fmt.Sprintf("🖼 חשבוניות: %d\n", m.Invoices))

	if len(m.FollowUps) > 0 {
		builder.WriteString("\n📞 <b>לקוחות למעקב</b>\n")
		for _, c := range m.FollowUps {
			line := html.EscapeString(strings.TrimSpace(c.Name))
			if c.Phone != "" {
				line += " · " + html.EscapeString(strings.TrimSpace(c.Phone))
			}
			if c.Status != "" {
				line += fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(strings.TrimSpace(c.Status)))
			}
			builder.WriteString("— " + line + "\n")
		}
	}
	return strings.TrimSpace(builder.String())
}
