// Package dashboard считает сводную статистику по счетам пользователя.
// Агрегация чистая и детерминированная: на входе уже сохраненные счета,
// на выходе сводка без обращений к хранилищу.
package dashboard

import (
	"time"

	"example.com/billsage/backend/internal/models"
	"example.com/billsage/backend/internal/pricing"
)

const (
	monthlyWindow   = 6
	recentBillLimit = 5
)

// MonthlySavings — экономия за календарный месяц.
type MonthlySavings struct {
	Month   string  `json:"month"`
	Savings float64 `json:"savings"`
}

// Stats — сводка для дашборда.
type Stats struct {
	TotalBills            int              `json:"totalBills"`
	TotalAnalyzed         int              `json:"totalAnalyzed"`
	TotalSavings          float64          `json:"totalSavings"`
	AverageSavingsPerBill float64          `json:"averageSavingsPerBill"`
	SavingsRate           float64          `json:"savingsRate"`
	SavingsRateTrend      float64          `json:"savingsRateTrend"`
	PreviousMonthSavings  float64          `json:"previousMonthSavings"`
	MonthlySavings        []MonthlySavings `json:"monthlySavings"`
	RecentBills           []models.Bill    `json:"recentBills"`
}

// BuildStats считает сводку по счетам пользователя. Счета должны быть
// отсортированы по времени загрузки по убыванию (контракт хранилища).
// Денежные показатели считаются только по проанализированным счетам,
// включая знаменатель savingsRate.
func BuildStats(bills []models.Bill, now time.Time) Stats {
	stats := Stats{
		TotalBills:     len(bills),
		MonthlySavings: make([]MonthlySavings, 0, monthlyWindow),
		RecentBills:    make([]models.Bill, 0, recentBillLimit),
	}

	var analyzedBilled float64
	var currentBilled, currentSavings float64
	var previousBilled, previousSavings float64

	currentMonth := monthKey(now)
	previousMonth := monthKey(now.AddDate(0, -1, 0))

	monthSavings := make(map[string]float64)

	for _, bill := range bills {
		if len(stats.RecentBills) < recentBillLimit {
			stats.RecentBills = append(stats.RecentBills, bill)
		}

		if bill.Status != models.BillStatusAnalyzed {
			continue
		}

		stats.TotalAnalyzed++
		stats.TotalSavings += bill.TotalSavings
		analyzedBilled += bill.TotalBilled

		key := monthKey(bill.UploadedAt)
		monthSavings[key] += bill.TotalSavings

		switch key {
		case currentMonth:
			currentBilled += bill.TotalBilled
			currentSavings += bill.TotalSavings
		case previousMonth:
			previousBilled += bill.TotalBilled
			previousSavings += bill.TotalSavings
		}
	}

	stats.TotalSavings = pricing.Round2(stats.TotalSavings)
	stats.PreviousMonthSavings = pricing.Round2(previousSavings)

	if stats.TotalAnalyzed > 0 {
		stats.AverageSavingsPerBill = pricing.Round2(stats.TotalSavings / float64(stats.TotalAnalyzed))
	}

	if analyzedBilled > 0 {
		stats.SavingsRate = pricing.Round2(stats.TotalSavings / analyzedBilled * 100)
	}

	if previousBilled > 0 {
		currentRate := 0.0
		if currentBilled > 0 {
			currentRate = currentSavings / currentBilled * 100
		}
		stats.SavingsRateTrend = pricing.Round2(currentRate - previousSavings/previousBilled*100)
	}

	for i := monthlyWindow - 1; i >= 0; i-- {
		month := now.AddDate(0, -i, 0)
		stats.MonthlySavings = append(stats.MonthlySavings, MonthlySavings{
			Month:   month.Format("Jan"),
			Savings: pricing.Round2(monthSavings[monthKey(month)]),
		})
	}

	return stats
}

func monthKey(t time.Time) string {
	return t.Format("2006-01")
}
