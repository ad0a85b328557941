package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

// Cipher protects the payer's phone number at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

const paymentColumns = `id, user_id, workspace_id, plan_id, provider, amount, phone_enc, reference,
       checkout_request_id, status, error_code, message, created_at, updated_at, completed_at`

type paymentRepo struct {
	pool   *pgxpool.Pool
	cipher Cipher
}

func NewPaymentRepo(pool *pgxpool.Pool, cipher Cipher) *paymentRepo {
	return &paymentRepo{pool: pool, cipher: cipher}
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	const q = `
INSERT INTO payments (
  id, user_id, workspace_id, plan_id, provider, amount, phone_enc, reference,
  checkout_request_id, status, error_code, message, created_at, updated_at, completed_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
) ON CONFLICT (id) DO UPDATE SET
  checkout_request_id=$9, status=$10, error_code=$11, message=$12, updated_at=$14, completed_at=$15;`
	phone, err := r.seal(p.PhoneNumber)
	if err != nil {
		return err
	}
	now := time.Now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	_, err = execSQL(ctx, r.pool, tx, q,
		p.ID, p.UserID, p.WorkspaceID, p.PlanID, p.Provider, p.Amount, phone, p.Reference,
		p.CheckoutRequestID, string(p.Status), string(p.ErrorCode), p.Message, p.CreatedAt, p.UpdatedAt, p.CompletedAt)
	return dbError("payment", err)
}

func (r *paymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	return r.findOne(ctx, tx, forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE id=$1`, tx), id)
}

func (r *paymentRepo) FindByCheckoutID(ctx context.Context, tx repository.Tx, checkoutRequestID string) (*model.Payment, error) {
	if checkoutRequestID == "" {
		return nil, domain.ErrNotFound
	}
	return r.findOne(ctx, tx, forUpdate(`SELECT `+paymentColumns+` FROM payments WHERE checkout_request_id=$1`, tx), checkoutRequestID)
}

func (r *paymentRepo) findOne(ctx context.Context, tx repository.Tx, q, arg string) (*model.Payment, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	p, err := r.scan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

// UpdateOutcome only touches pending rows, so a late poll cannot overwrite a
// result the reconciler already recorded.
func (r *paymentRepo) UpdateOutcome(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, checkoutRequestID string, code model.ErrorCode, message string, completedAt *time.Time) (bool, error) {
	const q = `
UPDATE payments
   SET status = $2,
       checkout_request_id = COALESCE(NULLIF($3, ''), checkout_request_id),
       error_code = $4,
       message = $5,
       completed_at = $6,
       updated_at = NOW()
 WHERE id = $1
   AND status = 'pending'`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, string(status), checkoutRequestID, string(code), message, completedAt)
	if err != nil {
		return false, dbError("payment", err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + paymentColumns + ` FROM payments WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, dbError("payment", err)
	}
	defer rows.Close()

	var out []*model.Payment
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *paymentRepo) SumSuccessfulSince(ctx context.Context, tx repository.Tx, userID string, since time.Time) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM payments WHERE user_id=$1 AND status='successful' AND created_at >= $2;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, since)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *paymentRepo) seal(phone string) (string, error) {
	if phone == "" || r.cipher == nil {
		return phone, nil
	}
	enc, err := r.cipher.Encrypt(phone)
	if err != nil {
		return "", fmt.Errorf("encrypt phone: %w", err)
	}
	return enc, nil
}

func (r *paymentRepo) scan(row pgx.Row) (*model.Payment, error) {
	var (
		p                   model.Payment
		phone, status, code string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.WorkspaceID, &p.PlanID, &p.Provider, &p.Amount, &phone, &p.Reference,
		&p.CheckoutRequestID, &status, &code, &p.Message, &p.CreatedAt, &p.UpdatedAt, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Status = model.PaymentStatus(status)
	p.ErrorCode = model.ErrorCode(code)
	if phone != "" && r.cipher != nil {
		if p.PhoneNumber, err = r.cipher.Decrypt(phone); err != nil {
			return nil, fmt.Errorf("decrypt phone for payment %s: %w", p.ID, err)
		}
	} else {
		p.PhoneNumber = phone
	}
	return &p, nil
}
