// Package reports builds the admin XLSX exports.
package reports

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/talentgate/subscription-engine/internal/domain/payments"
	"github.com/talentgate/subscription-engine/internal/domain/plans"
	"github.com/talentgate/subscription-engine/internal/domain/subscriptions"
	"github.com/talentgate/subscription-engine/internal/domain/usage"
)

const (
	sheetUsage    = "Usage"
	sheetPayments = "Payments"
)

// BuildWorkbook renders one workbook with a usage sheet and a payment ledger
// sheet. Counters may be missing for subscriptions that never activated.
func BuildWorkbook(subs []subscriptions.Subscription, counters map[string]*usage.Counter, pays []payments.Payment) (*excelize.File, error) {
	f := excelize.NewFile()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(sheet, sheetUsage); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(sheetPayments); err != nil {
		return nil, err
	}

	header := []interface{}{
		"subscription_id", "recruiter_id", "plan_id", "status",
		"start_date", "end_date", "auto_renewal",
		"job_postings_used", "job_posts_limit",
		"featured_jobs_used", "featured_jobs_limit",
		"cv_downloads_used", "cv_downloads_limit",
		"candidate_searches_used", "candidate_searches_limit",
	}
	if err := f.SetSheetRow(sheetUsage, "A1", &header); err != nil {
		return nil, err
	}

	row := 2
	for _, s := range subs {
		rec := []interface{}{
			s.ID, s.RecruiterID, s.PlanID, string(s.Status),
			s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"),
			s.AutoRenewal,
		}
		if c := counters[s.ID]; c != nil {
			rec = append(rec,
				c.JobPostingsUsed, limitCell(c.Limits.JobPostsLimit),
				c.FeaturedJobsUsed, limitCell(c.Limits.FeaturedJobs),
				c.CVDownloadsUsed, limitCell(c.Limits.CVDownloads),
				c.CandidateSearchesUsed, limitCell(c.Limits.CandidateSearches),
			)
		} else {
			rec = append(rec, "-", "-", "-", "-", "-", "-", "-", "-")
		}
		if err := f.SetSheetRow(sheetUsage, fmt.Sprintf("A%d", row), &rec); err != nil {
			return nil, err
		}
		row++
	}

	payHeader := []interface{}{
		"payment_id", "subscription_id", "amount_cents", "currency",
		"method", "status", "transaction_id", "reversal_of", "created_at",
	}
	if err := f.SetSheetRow(sheetPayments, "A1", &payHeader); err != nil {
		return nil, err
	}
	row = 2
	for _, p := range pays {
		rec := []interface{}{
			p.ID, p.SubscriptionID, p.AmountCents, p.Currency,
			p.Method, string(p.Status), p.TransactionID, p.ReversalOf,
			p.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := f.SetSheetRow(sheetPayments, fmt.Sprintf("A%d", row), &rec); err != nil {
			return nil, err
		}
		row++
	}

	return f, nil
}

func limitCell(limit int64) interface{} {
	if limit == plans.Unbounded {
		return "unbounded"
	}
	return limit
}
