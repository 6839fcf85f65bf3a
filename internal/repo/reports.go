// Package repo holds the storage adapters behind the service interfaces:
// report metadata in Postgres, appointments and patients in Firestore.
package repo

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/Alijeyrad/ehms_backend/internal/service/report"
)

// Migrations are applied by database.Migrate.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationFS returns Migrations rooted at the migrations directory.
func MigrationFS() fs.FS {
	sub, err := fs.Sub(Migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const (
	reportsTable        = "reports"
	deletedReportsTable = "deleted_reports"

	uniqueViolation = "23505"
)

var reportColumns = []string{
	"id", "name", "patient_id", "department", "sub_department", "notes", "url",
	"size_kb", "upload_date", "expiry_time", "instructions", "object_key", "created_at",
}

// Reports implements report.MetadataStore.
type Reports struct {
	drv *entsql.Driver
	db  *sql.DB
}

func NewReports(drv *entsql.Driver) *Reports {
	return &Reports{drv: drv, db: drv.DB()}
}

func (r *Reports) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*report.Report, error) {
	var (
		rep          report.Report
		instructions []string
	)
	err := row.Scan(
		&rep.ID, &rep.Name, &rep.PatientID, &rep.Department, &rep.SubDepartment, &rep.Notes, &rep.URL,
		&rep.Size, &rep.UploadDate, &rep.ExpiryTime, pq.Array(&instructions), &rep.ObjectKey, &rep.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if instructions == nil {
		instructions = []string{}
	}
	rep.Instructions = instructions
	rep.ExpiryTime = rep.ExpiryTime.UTC()
	rep.CreatedAt = rep.CreatedAt.UTC()
	return &rep, nil
}

func reportValues(rep *report.Report) []any {
	instructions := rep.Instructions
	if instructions == nil {
		instructions = []string{}
	}
	created := rep.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return []any{
		rep.ID, rep.Name, rep.PatientID, rep.Department, rep.SubDepartment, rep.Notes, rep.URL,
		rep.Size, rep.UploadDate, rep.ExpiryTime, pq.Array(instructions), rep.ObjectKey, created,
	}
}

func (r *Reports) Insert(ctx context.Context, rep *report.Report) error {
	query, args := r.builder().Insert(reportsTable).
		Columns(reportColumns...).
		Values(reportValues(rep)...).
		Query()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return report.ErrReportExists
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r *Reports) Get(ctx context.Context, id uuid.UUID) (*report.Report, error) {
	query, args := r.selectReports().Where(entsql.EQ("id", id)).Query()
	return r.one(ctx, query, args)
}

func (r *Reports) FindByObjectKey(ctx context.Context, key string) (*report.Report, error) {
	query, args := r.selectReports().Where(entsql.EQ("object_key", key)).Query()
	return r.one(ctx, query, args)
}

func (r *Reports) FindByName(ctx context.Context, name string) ([]*report.Report, error) {
	query, args := r.selectReports().
		Where(entsql.EQ("name", name)).
		OrderBy("created_at").
		Query()
	return r.many(ctx, query, args)
}

func (r *Reports) Search(ctx context.Context, f report.Filter) ([]*report.Report, error) {
	query, args := SearchQuery(r.builder(), f)
	return r.many(ctx, query, args)
}

// SearchQuery builds the filtered listing. Date bounds compare YYYY-MM-DD
// strings, which sort the same as the dates they encode.
func SearchQuery(b *entsql.DialectBuilder, f report.Filter) (string, []any) {
	sel := b.Select(reportColumns...).From(entsql.Table(reportsTable))

	var preds []*entsql.Predicate
	if f.PatientID != "" {
		preds = append(preds, entsql.EQ("patient_id", f.PatientID))
	}
	if f.Department != "" {
		preds = append(preds, entsql.EQ("department", f.Department))
	}
	if f.StartDate != "" {
		preds = append(preds, entsql.GTE("upload_date", f.StartDate))
	}
	if f.EndDate != "" {
		preds = append(preds, entsql.LTE("upload_date", f.EndDate))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}

	return sel.OrderBy("upload_date", "created_at").Query()
}

func (r *Reports) UpdateLink(ctx context.Context, id uuid.UUID, url string, expiry time.Time) error {
	query, args := r.builder().Update(reportsTable).
		Set("url", url).
		Set("expiry_time", expiry).
		Where(entsql.EQ("id", id)).
		Query()
	return r.execOne(ctx, "update report link", query, args)
}

func (r *Reports) SetDepartment(ctx context.Context, id uuid.UUID, department string) error {
	query, args := r.builder().Update(reportsTable).
		Set("department", department).
		Where(entsql.EQ("id", id)).
		Query()
	return r.execOne(ctx, "set report department", query, args)
}

const appendInstructionSQL = `UPDATE reports
SET instructions = array_append(instructions, $1)
WHERE id = $2
RETURNING instructions`

// AppendInstruction appends in one statement so concurrent appends to the
// same report are serialized by the row lock.
func (r *Reports) AppendInstruction(ctx context.Context, id uuid.UUID, instruction string) ([]string, error) {
	var list []string
	err := r.db.QueryRowContext(ctx, appendInstructionSQL, instruction, id).Scan(pq.Array(&list))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrNotFound
		}
		return nil, fmt.Errorf("append instruction: %w", err)
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}

func (r *Reports) MoveToDeleted(ctx context.Context, id uuid.UUID, d *report.DeletedReport) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	del, args := r.builder().Delete(reportsTable).Where(entsql.EQ("id", id)).Query()
	res, err := tx.ExecContext(ctx, del, args...)
	if err != nil {
		return fmt.Errorf("delete live report: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return report.ErrNotFound
	}

	cols := append(append([]string{}, reportColumns...), "technician_id", "deleted_at", "reason")
	vals := append(reportValues(&d.Report), d.TechnicianID, d.Timestamp, d.Reason)
	ins, args := r.builder().Insert(deletedReportsTable).Columns(cols...).Values(vals...).Query()
	if _, err := tx.ExecContext(ctx, ins, args...); err != nil {
		return fmt.Errorf("insert deleted report: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *Reports) selectReports() *entsql.Selector {
	return r.builder().Select(reportColumns...).From(entsql.Table(reportsTable))
}

func (r *Reports) one(ctx context.Context, query string, args []any) (*report.Report, error) {
	rep, err := scanReport(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, report.ErrNotFound
		}
		return nil, fmt.Errorf("query report: %w", err)
	}
	return rep, nil
}

func (r *Reports) many(ctx context.Context, query string, args []any) ([]*report.Report, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}
	defer rows.Close()

	out := []*report.Report{}
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		out = append(out, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return out, nil
}

func (r *Reports) execOne(ctx context.Context, op, query string, args []any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return report.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
