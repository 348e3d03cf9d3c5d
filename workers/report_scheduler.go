package workers

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/elite-business/case-tools-new-sub005/db"
	"github.com/elite-business/case-tools-new-sub005/services"
)

// ReportScheduler generates periodic report snapshots on a cron schedule
type ReportScheduler struct {
	Reports *services.ReportService
	cron    *cron.Cron
}

func NewReportScheduler(reports *services.ReportService) *ReportScheduler {
	return &ReportScheduler{
		Reports: reports,
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}
}

// Start registers the schedules and runs the cron loop in the background
func (s *ReportScheduler) Start() error {
	// Daily summary shortly after midnight UTC
	if _, err := s.cron.AddFunc("5 0 * * *", s.generateDailySummary); err != nil {
		return err
	}
	// Weekly summary and SLA compliance every Monday morning
	if _, err := s.cron.AddFunc("15 0 * * 1", s.generateWeeklyReports); err != nil {
		return err
	}

	s.cron.Start()
	log.Println("Report scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for running jobs
func (s *ReportScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *ReportScheduler) generateDailySummary() {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -1)

	report, err := s.Reports.GenerateSummary(db.ReportTypeDailySummary, start, end, db.SystemUserScheduler)
	if err != nil {
		log.Printf("Report scheduler: daily summary failed: %v", err)
		return
	}
	log.Printf("Report scheduler: generated daily summary %s", report.ID)
}

func (s *ReportScheduler) generateWeeklyReports() {
	end := time.Now().UTC().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -7)

	if report, err := s.Reports.GenerateSummary(db.ReportTypeWeeklySummary, start, end, db.SystemUserScheduler); err != nil {
		log.Printf("Report scheduler: weekly summary failed: %v", err)
	} else {
		log.Printf("Report scheduler: generated weekly summary %s", report.ID)
	}

	if report, err := s.Reports.GenerateSLACompliance(start, end, db.SystemUserScheduler); err != nil {
		log.Printf("Report scheduler: SLA compliance report failed: %v", err)
	} else {
		log.Printf("Report scheduler: generated SLA compliance report %s", report.ID)
	}
}
