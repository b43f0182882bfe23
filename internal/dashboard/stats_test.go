package dashboard

import (
	"testing"
	"time"

	"example.com/billsage/backend/internal/models"
)

var now = time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)

func analyzedBill(billed, savings float64, uploadedAt time.Time) models.Bill {
	return models.Bill{
		Status:       models.BillStatusAnalyzed,
		TotalBilled:  billed,
		TotalSavings: savings,
		UploadedAt:   uploadedAt,
	}
}

// TestBuildStatsAnalyzedOnly проверяет, что знаменатель считается
// только по проанализированным счетам.
func TestBuildStatsAnalyzedOnly(t *testing.T) {
	bills := []models.Bill{
		analyzedBill(1000, 200, now),
		{Status: models.BillStatusPending, TotalBilled: 500, UploadedAt: now},
	}

	stats := BuildStats(bills, now)

	if stats.TotalBills != 2 {
		t.Fatalf("expected 2 bills, got %d", stats.TotalBills)
	}
	if stats.TotalAnalyzed != 1 {
		t.Fatalf("expected 1 analyzed, got %d", stats.TotalAnalyzed)
	}
	if stats.TotalSavings != 200 {
		t.Fatalf("expected savings 200, got %v", stats.TotalSavings)
	}
	if stats.SavingsRate != 20 {
		t.Fatalf("expected savings rate 20, got %v", stats.SavingsRate)
	}
	if stats.AverageSavingsPerBill != 200 {
		t.Fatalf("expected average 200, got %v", stats.AverageSavingsPerBill)
	}
}

// TestBuildStatsEmpty проверяет нули без деления на ноль.
func TestBuildStatsEmpty(t *testing.T) {
	stats := BuildStats(nil, now)

	if stats.TotalBills != 0 || stats.TotalAnalyzed != 0 {
		t.Fatalf("expected zero counts, got %+v", stats)
	}
	if stats.SavingsRate != 0 || stats.AverageSavingsPerBill != 0 || stats.SavingsRateTrend != 0 {
		t.Fatalf("expected zero rates, got %+v", stats)
	}
	if len(stats.MonthlySavings) != monthlyWindow {
		t.Fatalf("expected %d month buckets, got %d", monthlyWindow, len(stats.MonthlySavings))
	}
}

// TestBuildStatsMonthlySeries проверяет помесячную серию за полгода.
func TestBuildStatsMonthlySeries(t *testing.T) {
	bills := []models.Bill{
		analyzedBill(1000, 200, now),
		analyzedBill(400, 100, now.AddDate(0, -1, 0)),
		analyzedBill(300, 50, now.AddDate(0, -7, 0)), // за пределами окна
	}

	stats := BuildStats(bills, now)

	if len(stats.MonthlySavings) != monthlyWindow {
		t.Fatalf("expected %d buckets, got %d", monthlyWindow, len(stats.MonthlySavings))
	}

	last := stats.MonthlySavings[monthlyWindow-1]
	if last.Month != "Aug" || last.Savings != 200 {
		t.Fatalf("unexpected current month bucket: %+v", last)
	}

	prev := stats.MonthlySavings[monthlyWindow-2]
	if prev.Month != "Jul" || prev.Savings != 100 {
		t.Fatalf("unexpected previous month bucket: %+v", prev)
	}

	first := stats.MonthlySavings[0]
	if first.Month != "Mar" || first.Savings != 0 {
		t.Fatalf("unexpected oldest bucket: %+v", first)
	}
}

// TestBuildStatsTrend проверяет тренд месяц к месяцу.
func TestBuildStatsTrend(t *testing.T) {
	bills := []models.Bill{
		analyzedBill(1000, 300, now),                  // 30%
		analyzedBill(1000, 100, now.AddDate(0, -1, 0)), // 10%
	}

	stats := BuildStats(bills, now)
	if stats.SavingsRateTrend != 20 {
		t.Fatalf("expected trend 20, got %v", stats.SavingsRateTrend)
	}
	if stats.PreviousMonthSavings != 100 {
		t.Fatalf("expected previous month savings 100, got %v", stats.PreviousMonthSavings)
	}
}

// TestBuildStatsTrendZeroPreviousMonth проверяет тренд 0 без данных за прошлый месяц.
func TestBuildStatsTrendZeroPreviousMonth(t *testing.T) {
	bills := []models.Bill{analyzedBill(1000, 300, now)}

	stats := BuildStats(bills, now)
	if stats.SavingsRateTrend != 0 {
		t.Fatalf("expected zero trend, got %v", stats.SavingsRateTrend)
	}
}

// TestBuildStatsRecentBills проверяет срез последних пяти счетов.
func TestBuildStatsRecentBills(t *testing.T) {
	bills := make([]models.Bill, 0, 7)
	for i := 0; i < 7; i++ {
		bill := analyzedBill(100, 10, now.AddDate(0, 0, -i))
		bill.FileName = string(rune('a' + i))
		bills = append(bills, bill)
	}

	stats := BuildStats(bills, now)
	if len(stats.RecentBills) != recentBillLimit {
		t.Fatalf("expected %d recent bills, got %d", recentBillLimit, len(stats.RecentBills))
	}
	if stats.RecentBills[0].FileName != "a" {
		t.Fatalf("expected storage order preserved, got %q first", stats.RecentBills[0].FileName)
	}
}
