// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"

	"github.com/mmeshcher/classcredit-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSlotNotFound возвращается, если слот с указанным идентификатором отсутствует.
var (
	ErrSlotNotFound = errors.New("slot not found")
	// ErrSlotNotAvailable возвращается при попытке забронировать уже занятый слот.
	ErrSlotNotAvailable = errors.New("slot is not available")
	// ErrSlotNotBooked возвращается, если операция допустима только для забронированного слота.
	ErrSlotNotBooked = errors.New("slot is not booked")
	// ErrSlotFinished возвращается при попытке изменить завершённый слот.
	ErrSlotFinished = errors.New("slot is finished")
	// ErrForbidden возвращается, если у пользователя нет прав на операцию со слотом.
	ErrForbidden = errors.New("operation not permitted")
	// ErrInvalidInterval возвращается, если после применения изменений конец
	// занятия оказывается не позже его начала.
	ErrInvalidInterval = errors.New("invalid slot interval")
	// ErrInsufficientCredits возвращается при попытке списания суммы, превышающей баланс.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrPaymentAlreadyRedeemed возвращается при повторном зачислении одного и того же платежа.
	ErrPaymentAlreadyRedeemed = errors.New("payment already redeemed")
	// ErrUnavailable возвращается, когда хранилище недоступно и повторы исчерпаны.
	// Состояние сущностей при этом гарантированно не изменено.
	ErrUnavailable = errors.New("storage unavailable")
)

const slotColumns = `id, creator_id, instructor_name, start_time, end_time, time_label,
	 credit_cost, class_date, state, student_id, charged_credits, created_at`

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет fn при конфликте сериализации, дедлоке или сетевой ошибке.
// Бизнес-ошибки и отмена контекста возвращаются сразу, без повторов.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(500*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateSlot сохраняет новый слот в состоянии available и присваивает ему идентификатор.
func (r *PostgresRepository) CreateSlot(ctx context.Context, slot *model.ClassSlot) error {
	slot.ID = uuid.NewString()
	slot.State = model.SlotStateAvailable

	err := r.pool.QueryRow(ctx,
		`INSERT INTO slots (id, creator_id, instructor_name, start_time, end_time, time_label, credit_cost, class_date, state)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		slot.ID, slot.CreatorID, slot.InstructorName, slot.StartTime, slot.EndTime,
		slot.TimeLabel, slot.CreditCost, slot.ClassDate, string(slot.State),
	).Scan(&slot.CreatedAt)
	if err != nil {
		return fmt.Errorf("create slot: %w", err)
	}

	return nil
}

// GetSlotByID возвращает слот по идентификатору.
func (r *PostgresRepository) GetSlotByID(ctx context.Context, slotID string) (*model.ClassSlot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = $1`,
		slotID,
	)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("get slot: %w", err)
	}

	return slot, nil
}

// ListSlotsByDate возвращает слоты на указанную дату, упорядоченные по времени начала.
func (r *PostgresRepository) ListSlotsByDate(ctx context.Context, date time.Time) ([]model.ClassSlot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+slotColumns+`
		 FROM slots
		 WHERE class_date = $1
		 ORDER BY start_time`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("select slots by date: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

// ListSlotsByCoach возвращает все слоты тренера, упорядоченные по времени начала.
func (r *PostgresRepository) ListSlotsByCoach(ctx context.Context, coachID int64) ([]model.ClassSlot, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+slotColumns+`
		 FROM slots
		 WHERE creator_id = $1
		 ORDER BY start_time`,
		coachID,
	)
	if err != nil {
		return nil, fmt.Errorf("select slots by coach: %w", err)
	}
	defer rows.Close()

	return collectSlots(rows)
}

// UpdateSlot применяет частичное изменение слота. Завершённый слот неизменяем;
// изменение стоимости не затрагивает уже списанные кредиты.
func (r *PostgresRepository) UpdateSlot(ctx context.Context, slotID string, requester int64, patch model.SlotPatch) (*model.ClassSlot, error) {
	var updated *model.ClassSlot

	err := r.withRetry(ctx, func(ctx context.Context) error {
		var txErr error
		updated, txErr = r.updateSlotTx(ctx, slotID, requester, patch)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *PostgresRepository) updateSlotTx(ctx context.Context, slotID string, requester int64, patch model.SlotPatch) (*model.ClassSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.CreatorID != requester {
		return nil, ErrForbidden
	}
	if slot.State == model.SlotStateFinished {
		return nil, ErrSlotFinished
	}

	if patch.InstructorName != nil {
		slot.InstructorName = *patch.InstructorName
	}
	if patch.StartTime != nil {
		slot.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		slot.EndTime = *patch.EndTime
	}
	if patch.CreditCost != nil {
		slot.CreditCost = *patch.CreditCost
	}

	// Интервал проверяется под блокировкой строки: конкурентное изменение
	// границ между чтением и обновлением не должно давать пустой интервал.
	if !slot.EndTime.After(slot.StartTime) {
		return nil, ErrInvalidInterval
	}

	slot.ClassDate = model.ClassDateOf(slot.StartTime)
	slot.TimeLabel = model.FormatTimeLabel(slot.StartTime, slot.EndTime)

	_, err = tx.Exec(ctx,
		`UPDATE slots
		 SET instructor_name = $2, start_time = $3, end_time = $4, time_label = $5, credit_cost = $6, class_date = $7
		 WHERE id = $1`,
		slot.ID, slot.InstructorName, slot.StartTime, slot.EndTime, slot.TimeLabel, slot.CreditCost, slot.ClassDate,
	)
	if err != nil {
		return nil, fmt.Errorf("update slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return slot, nil
}

// DeleteSlot удаляет слот. Забронированный слот перед удалением возвращает
// студенту списанные кредиты в той же транзакции. Завершённый слот не удаляется,
// чтобы сохранить историю расчётов.
func (r *PostgresRepository) DeleteSlot(ctx context.Context, slotID string, requester int64) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		return r.deleteSlotTx(ctx, slotID, requester)
	})
}

func (r *PostgresRepository) deleteSlotTx(ctx context.Context, slotID string, requester int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return err
	}

	if slot.CreatorID != requester {
		return ErrForbidden
	}
	if slot.State == model.SlotStateFinished {
		return ErrSlotFinished
	}

	if slot.State == model.SlotStateBooked {
		if err := refundStudent(ctx, tx, slot); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM slots WHERE id = $1`, slot.ID); err != nil {
		return fmt.Errorf("delete slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// BookSlot бронирует свободный слот для студента и атомарно списывает его стоимость.
// Из двух конкурентных бронирований одного слота успешным будет ровно одно.
func (r *PostgresRepository) BookSlot(ctx context.Context, slotID string, studentID int64) (*model.ClassSlot, error) {
	var booked *model.ClassSlot

	err := r.withRetry(ctx, func(ctx context.Context) error {
		var txErr error
		booked, txErr = r.bookSlotTx(ctx, slotID, studentID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return booked, nil
}

func (r *PostgresRepository) bookSlotTx(ctx context.Context, slotID string, studentID int64) (*model.ClassSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.State != model.SlotStateAvailable {
		return nil, ErrSlotNotAvailable
	}

	if err := lockAccount(ctx, tx, studentID); err != nil {
		return nil, err
	}

	balance, err := balanceTx(ctx, tx, studentID)
	if err != nil {
		return nil, err
	}
	if balance < slot.CreditCost {
		return nil, ErrInsufficientCredits
	}

	if err := appendTransactionTx(ctx, tx, studentID, -slot.CreditCost, model.TransactionBooking, &slot.ID, nil); err != nil {
		return nil, err
	}

	// Условие state='available' защищает от гонки даже вне блокировки строки.
	cmdTag, err := tx.Exec(ctx,
		`UPDATE slots
		 SET state = $2, student_id = $3, charged_credits = $4
		 WHERE id = $1 AND state = $5`,
		slot.ID, string(model.SlotStateBooked), studentID, slot.CreditCost, string(model.SlotStateAvailable),
	)
	if err != nil {
		return nil, fmt.Errorf("mark slot booked: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, ErrSlotNotAvailable
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	slot.State = model.SlotStateBooked
	slot.StudentID = &studentID
	charged := slot.CreditCost
	slot.ChargedCredits = &charged

	return slot, nil
}

// FinishSlot завершает забронированный слот и выплачивает тренеру зафиксированную
// при бронировании стоимость. Повторное завершение невозможно: состояние
// проверяется в той же транзакции, что и зачисление.
func (r *PostgresRepository) FinishSlot(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error) {
	var finished *model.ClassSlot

	err := r.withRetry(ctx, func(ctx context.Context) error {
		var txErr error
		finished, txErr = r.finishSlotTx(ctx, slotID, requester)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return finished, nil
}

func (r *PostgresRepository) finishSlotTx(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.CreatorID != requester {
		return nil, ErrForbidden
	}
	if slot.State != model.SlotStateBooked {
		return nil, ErrSlotNotBooked
	}

	payout := slot.CreditCost
	if slot.ChargedCredits != nil {
		payout = *slot.ChargedCredits
	}

	if err := lockAccount(ctx, tx, slot.CreatorID); err != nil {
		return nil, err
	}

	if err := appendTransactionTx(ctx, tx, slot.CreatorID, payout, model.TransactionCompletion, &slot.ID, nil); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE slots SET state = $2 WHERE id = $1`,
		slot.ID, string(model.SlotStateFinished),
	)
	if err != nil {
		return nil, fmt.Errorf("mark slot finished: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	slot.State = model.SlotStateFinished

	return slot, nil
}

// CancelBooking снимает бронь со слота и полностью возвращает студенту
// списанные кредиты. Отменить бронь может тренер или сам студент.
func (r *PostgresRepository) CancelBooking(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error) {
	var canceled *model.ClassSlot

	err := r.withRetry(ctx, func(ctx context.Context) error {
		var txErr error
		canceled, txErr = r.cancelBookingTx(ctx, slotID, requester)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return canceled, nil
}

func (r *PostgresRepository) cancelBookingTx(ctx context.Context, slotID string, requester int64) (*model.ClassSlot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	slot, err := lockSlot(ctx, tx, slotID)
	if err != nil {
		return nil, err
	}

	if slot.State != model.SlotStateBooked {
		return nil, ErrSlotNotBooked
	}
	if slot.CreatorID != requester && (slot.StudentID == nil || *slot.StudentID != requester) {
		return nil, ErrForbidden
	}

	if err := refundStudent(ctx, tx, slot); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE slots SET state = $2, student_id = NULL, charged_credits = NULL WHERE id = $1`,
		slot.ID, string(model.SlotStateAvailable),
	)
	if err != nil {
		return nil, fmt.Errorf("release slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	slot.State = model.SlotStateAvailable
	slot.StudentID = nil
	slot.ChargedCredits = nil

	return slot, nil
}

// AppendTopUp пополняет баланс пользователя. Ненулевой paymentID защищён
// уникальным индексом: один платёж зачисляется не более одного раза.
func (r *PostgresRepository) AppendTopUp(ctx context.Context, userID, amount int64, paymentID *string) (*model.CreditTransaction, error) {
	var created *model.CreditTransaction

	err := r.withRetry(ctx, func(ctx context.Context) error {
		var txErr error
		created, txErr = r.appendTopUpTx(ctx, userID, amount, paymentID)
		return txErr
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

func (r *PostgresRepository) appendTopUpTx(ctx context.Context, userID, amount int64, paymentID *string) (*model.CreditTransaction, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockAccount(ctx, tx, userID); err != nil {
		return nil, err
	}

	t := &model.CreditTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Category:  model.TransactionTopUp,
		PaymentID: paymentID,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO transactions (id, user_id, amount, category, payment_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		t.ID, t.UserID, t.Amount, string(t.Category), t.PaymentID,
	).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrPaymentAlreadyRedeemed
		}
		return nil, fmt.Errorf("insert topup: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return t, nil
}

// GetBalance возвращает баланс пользователя как сумму всех его транзакций.
func (r *PostgresRepository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}

	return balance, nil
}

// GetTransactions возвращает историю транзакций пользователя от новых к старым.
// Упорядочивание идёт по порядковому номеру вставки, а не по created_at:
// created_at фиксируется в момент начала транзакции и у конкурентных операций
// может не совпадать с порядком их фиксации. Границы периода необязательны.
func (r *PostgresRepository) GetTransactions(ctx context.Context, userID int64, from, to *time.Time) ([]model.CreditTransaction, error) {
	query := `SELECT id, user_id, amount, category, slot_id, payment_id, created_at
	          FROM transactions
	          WHERE user_id = $1`
	args := []any{userID}

	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	query += " ORDER BY seq DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.CreditTransaction
	for rows.Next() {
		var (
			t        model.CreditTransaction
			category string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &category, &t.SlotID, &t.PaymentID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Category = model.TransactionCategory(category)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetMonthlyTotals возвращает помесячные суммы зачислений и списаний пользователя за год.
func (r *PostgresRepository) GetMonthlyTotals(ctx context.Context, userID int64, year int) ([]model.MonthlyTotal, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT EXTRACT(MONTH FROM created_at)::int AS month,
		        COALESCE(SUM(amount) FILTER (WHERE amount > 0), 0),
		        COALESCE(SUM(-amount) FILTER (WHERE amount < 0), 0),
		        COALESCE(SUM(amount), 0)
		 FROM transactions
		 WHERE user_id = $1 AND EXTRACT(YEAR FROM created_at) = $2
		 GROUP BY month
		 ORDER BY month`,
		userID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("select monthly totals: %w", err)
	}
	defer rows.Close()

	var res []model.MonthlyTotal
	for rows.Next() {
		var (
			month int
			t     model.MonthlyTotal
		)
		if err := rows.Scan(&month, &t.Credited, &t.Debited, &t.Net); err != nil {
			return nil, fmt.Errorf("scan monthly total: %w", err)
		}
		t.Month = time.Month(month)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// lockSlot читает слот с блокировкой строки до конца транзакции.
func lockSlot(ctx context.Context, tx pgx.Tx, slotID string) (*model.ClassSlot, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+slotColumns+` FROM slots WHERE id = $1 FOR UPDATE`,
		slotID,
	)

	slot, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, fmt.Errorf("lock slot: %w", err)
	}

	return slot, nil
}

// lockAccount создаёт счёт при первом обращении и блокирует его строку,
// сериализуя конкурентные изменения баланса одного пользователя.
func lockAccount(ctx context.Context, tx pgx.Tx, userID int64) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO accounts (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("ensure account: %w", err)
	}

	var dummy int
	err = tx.QueryRow(ctx, `SELECT 1 FROM accounts WHERE user_id = $1 FOR UPDATE`, userID).Scan(&dummy)
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}

	return nil
}

func balanceTx(ctx context.Context, tx pgx.Tx, userID int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}

	return balance, nil
}

func appendTransactionTx(ctx context.Context, tx pgx.Tx, userID, amount int64, category model.TransactionCategory, slotID, paymentID *string) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, amount, category, slot_id, payment_id)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.NewString(), userID, amount, string(category), slotID, paymentID,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

// refundStudent возвращает студенту зафиксированную при бронировании стоимость слота.
func refundStudent(ctx context.Context, tx pgx.Tx, slot *model.ClassSlot) error {
	if slot.StudentID == nil {
		return nil
	}

	refund := slot.CreditCost
	if slot.ChargedCredits != nil {
		refund = *slot.ChargedCredits
	}

	if err := lockAccount(ctx, tx, *slot.StudentID); err != nil {
		return err
	}

	return appendTransactionTx(ctx, tx, *slot.StudentID, refund, model.TransactionRefund, &slot.ID, nil)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSlot(row rowScanner) (*model.ClassSlot, error) {
	var (
		slot  model.ClassSlot
		state string
	)

	err := row.Scan(
		&slot.ID, &slot.CreatorID, &slot.InstructorName, &slot.StartTime, &slot.EndTime,
		&slot.TimeLabel, &slot.CreditCost, &slot.ClassDate, &state, &slot.StudentID,
		&slot.ChargedCredits, &slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	slot.State = model.SlotState(state)

	return &slot, nil
}

func collectSlots(rows pgx.Rows) ([]model.ClassSlot, error) {
	var res []model.ClassSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		res = append(res, *slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
