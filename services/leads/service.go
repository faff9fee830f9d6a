// Package leads collects the output of a discovery session and hands it
// to the persistence, export and delivery collaborators.
package leads

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"leadscout/services/discovery"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/leads")

// Run is one finished discovery session, handed over by value.
type Run struct {
	ID         string
	Query      string
	Location   string
	StartedAt  time.Time
	FinishedAt time.Time
	Leads      []discovery.Lead
}

func NewRunID() (string, error) {
	return random.String(12)
}

type Service struct {
	db *sql.DB
}

func NewService(database *sql.DB) Service {
	return Service{db: database}
}

func (s Service) RecordRun(ctx context.Context, run Run) error {
	ctx, span := tracer.Start(ctx, "RecordRun")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", run.ID),
		attribute.Int("leads", len(run.Leads)),
	)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, query, location, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Query, run.Location,
		run.StartedAt.Unix(), run.FinishedAt.Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for i, lead := range run.Leads {
		var score *int
		var issues *string
		if lead.Evaluation != nil {
			score = &lead.Evaluation.Score
			joined := strings.Join(lead.Evaluation.Issues, "\n")
			issues = &joined
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO leads
			 (run_id, position, name, address, phone, rating, website, score, issues, qualified, snapshot)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, lead.Listing.Name,
			lead.Listing.Address, lead.Listing.Phone, lead.Listing.Rating,
			lead.Listing.Website, score, issues, lead.Qualified, lead.Snapshot,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	return tx.Commit()
}

type RunSummary struct {
	ID         string
	Query      string
	Location   string
	StartedAt  time.Time
	FinishedAt time.Time
	LeadCount  int
}

func (s Service) Runs(ctx context.Context) ([]RunSummary, error) {
	ctx, span := tracer.Start(ctx, "Runs")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT r.id, r.query, r.location, r.started_at, r.finished_at, COUNT(l.run_id)
		 FROM runs r LEFT JOIN leads l ON l.run_id = r.id
		 GROUP BY r.id ORDER BY r.started_at DESC`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var started, finished int64
		err = rows.Scan(&r.ID, &r.Query, &r.Location, &started, &finished, &r.LeadCount)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		r.StartedAt = time.Unix(started, 0)
		r.FinishedAt = time.Unix(finished, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

// StoredLead is a persisted lead read back for export; optional fields
// stay nil when they were absent at discovery time.
type StoredLead struct {
	Name      string
	Address   *string
	Phone     *string
	Rating    *string
	Website   *string
	Score     *int
	Issues    []string
	Qualified bool
}

func (s Service) LeadsForRun(ctx context.Context, runID string) ([]StoredLead, error) {
	ctx, span := tracer.Start(ctx, "LeadsForRun")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", runID))

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, address, phone, rating, website, score, issues, qualified
		 FROM leads WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []StoredLead
	for rows.Next() {
		var l StoredLead
		var issues *string
		err = rows.Scan(&l.Name, &l.Address, &l.Phone, &l.Rating, &l.Website, &l.Score, &issues, &l.Qualified)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if issues != nil && *issues != "" {
			l.Issues = strings.Split(*issues, "\n")
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
