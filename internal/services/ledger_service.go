package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmwangi/chamaledger/internal/infrastructure/kafka"
	"github.com/jmwangi/chamaledger/internal/infrastructure/observability"
	"github.com/jmwangi/chamaledger/internal/infrastructure/redis"
	"github.com/jmwangi/chamaledger/internal/models"
	"github.com/jmwangi/chamaledger/internal/repository"
	pkgerrors "github.com/jmwangi/chamaledger/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

const (
	topicLedgerTransactions = "ledger.transactions"
	balanceCacheTTL         = 5 * time.Minute
)

type LedgerService interface {
	AuthorizeWithdrawal(ctx context.Context, userID, chamaID int64) (*models.Member, error)
	Membership(ctx context.Context, userID, chamaID int64) (*models.Member, error)
	Execute(ctx context.Context, params ExecuteParams) (*models.Transaction, error)
	ExecuteDeposit(ctx context.Context, chamaID int64, amount decimal.Decimal, phone, initiator string, status models.StatusType) (*models.Transaction, error)
	GetBalance(ctx context.Context, chamaID int64) (decimal.Decimal, error)
	GetTransactionHistory(ctx context.Context, chamaID int64, filter repository.TransactionFilter) ([]models.Transaction, decimal.Decimal, error)
	GetAuditTrail(ctx context.Context, chamaID int64) ([]models.AuditLog, error)
}

// ExecuteParams describes one deposit or withdrawal against a chama's
// main account. Member may be nil when the initiator does not resolve
// to a roster entry (e.g. a gateway callback); Initiator is then the
// only attribution.
type ExecuteParams struct {
	ChamaID     int64
	Member      *models.Member
	Kind        models.TransactionKind
	Amount      decimal.Decimal
	PhoneNumber string
	Initiator   string
	Status      models.StatusType
}

type ledgerService struct {
	uow          repository.TxBeginner
	accounts     repository.AccountRepository
	transactions repository.TransactionRepository
	audits       repository.AuditRepository
	members      repository.MemberRepository
	redisClient  redis.RedisClient
	producer     kafka.KafkaProducer
}

func NewLedgerService(
	uow repository.TxBeginner,
	accounts repository.AccountRepository,
	transactions repository.TransactionRepository,
	audits repository.AuditRepository,
	members repository.MemberRepository,
	redisClient redis.RedisClient,
	producer kafka.KafkaProducer,
) *ledgerService {
	return &ledgerService{
		uow:          uow,
		accounts:     accounts,
		transactions: transactions,
		audits:       audits,
		members:      members,
		redisClient:  redisClient,
		producer:     producer,
	}
}

// AuthorizeWithdrawal resolves the acting member and fails closed with
// ErrUnauthorized unless the user holds the leader role in the chama.
func (s *ledgerService) AuthorizeWithdrawal(ctx context.Context, userID, chamaID int64) (*models.Member, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "AuthorizeWithdrawal")
	defer span.End()

	member, err := s.members.GetByUserAndChama(ctx, userID, chamaID)
	if err != nil {
		span.SetStatus(codes.Error, "membership lookup failed")
		slog.Warn("withdrawal authorization failed", "user_id", userID, "chama_id", chamaID, "error", err)
		return nil, pkgerrors.ErrUnauthorized
	}
	if member.Role != models.RoleLeader {
		span.SetStatus(codes.Error, "not a leader")
		slog.Warn("withdrawal denied for non-leader", "user_id", userID, "chama_id", chamaID, "role", member.Role)
		return nil, pkgerrors.ErrUnauthorized
	}

	slog.Info("withdrawal authorized", "user_id", userID, "chama_id", chamaID, "member_id", member.ID)
	return member, nil
}

func (s *ledgerService) Membership(ctx context.Context, userID, chamaID int64) (*models.Member, error) {
	return s.members.GetByUserAndChama(ctx, userID, chamaID)
}

// Execute runs one deposit or withdrawal as a single unit of work:
// lock the main account row, re-check funds inside the lock, persist
// the new balance, append the transaction, record the audit entry,
// commit. Any failure after the lock rolls everything back.
func (s *ledgerService) Execute(ctx context.Context, params ExecuteParams) (*models.Transaction, error) {
	var err error
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "Execute")
	defer span.End()

	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		observability.LedgerOperations.WithLabelValues(string(params.Kind), status).Inc()
	}()

	// validated before any lock is taken
	if params.Amount.Sign() <= 0 {
		err = pkgerrors.ErrInvalidAmount
		span.SetStatus(codes.Error, "invalid amount")
		slog.Error("invalid amount", "chama_id", params.ChamaID, "amount", params.Amount)
		return nil, err
	}
	if params.Kind != models.KindDeposit && params.Kind != models.KindWithdrawal {
		err = pkgerrors.ErrInvalidTransactionKind
		span.SetStatus(codes.Error, "invalid kind")
		return nil, err
	}
	if params.Status == "" {
		params.Status = models.StatusCompleted
	}

	tx, err := s.uow.BeginTx(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin failed")
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
				slog.Error("rollback failed", "chama_id", params.ChamaID, "error", rbErr)
			}
		}
	}()

	account, err := s.accounts.GetMainAccountForUpdate(ctx, tx, params.ChamaID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account lock failed")
		return nil, err
	}

	// re-check inside the lock: another withdrawal may have drained
	// the account between request and lock acquisition
	newBalance := account.Balance
	switch params.Kind {
	case models.KindWithdrawal:
		if account.Balance.LessThan(params.Amount) {
			err = pkgerrors.ErrInsufficientFunds
			span.SetStatus(codes.Error, "insufficient funds")
			slog.Warn("insufficient funds", "chama_id", params.ChamaID, "balance", account.Balance, "amount", params.Amount)
			return nil, err
		}
		newBalance = account.Balance.Sub(params.Amount)
	case models.KindDeposit:
		newBalance = account.Balance.Add(params.Amount)
	}

	if err = s.accounts.UpdateBalance(ctx, tx, account.ID, newBalance); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "balance update failed")
		return nil, err
	}

	txn := &models.Transaction{
		ChamaID:     params.ChamaID,
		Initiator:   params.Initiator,
		Amount:      params.Amount,
		CheckoutID:  uuid.NewString(),
		ProviderRef: providerRef(),
		PhoneNumber: params.PhoneNumber,
		Status:      params.Status,
		Kind:        params.Kind,
	}
	var actorUserID *int64
	if params.Member != nil {
		txn.MemberID = &params.Member.ID
		actorUserID = &params.Member.UserID
	}

	if _, err = s.transactions.Create(ctx, tx, txn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction insert failed")
		return nil, err
	}

	audit := &models.AuditLog{
		TransactionID: txn.ID,
		ChamaID:       params.ChamaID,
		ActorUserID:   actorUserID,
		Action:        params.Kind,
		Amount:        params.Amount,
		ReferenceNo:   auditRef(),
	}
	if _, err = s.audits.Create(ctx, tx, audit); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "audit insert failed")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit failed")
		slog.Error("failed to commit unit of work", "chama_id", params.ChamaID, "error", err)
		return nil, fmt.Errorf("failed to commit unit of work: %w", err)
	}
	committed = true

	if s.redisClient != nil {
		if delErr := s.redisClient.Del(ctx, balanceKey(params.ChamaID)); delErr != nil {
			slog.Error("failed to invalidate balance cache", "chama_id", params.ChamaID, "error", delErr)
		}
	}

	s.publishCommitted(txn, audit)

	slog.Info("ledger operation committed",
		"chama_id", params.ChamaID,
		"kind", txn.Kind,
		"amount", txn.Amount,
		"provider_ref", txn.ProviderRef,
		"new_balance", newBalance)

	return txn, nil
}

// ExecuteDeposit is the entry point for gateway callbacks, where the
// initiator never resolves to a roster member.
func (s *ledgerService) ExecuteDeposit(ctx context.Context, chamaID int64, amount decimal.Decimal, phone, initiator string, status models.StatusType) (*models.Transaction, error) {
	return s.Execute(ctx, ExecuteParams{
		ChamaID:     chamaID,
		Kind:        models.KindDeposit,
		Amount:      amount,
		PhoneNumber: phone,
		Initiator:   initiator,
		Status:      status,
	})
}

func (s *ledgerService) publishCommitted(txn *models.Transaction, audit *models.AuditLog) {
	if s.producer == nil {
		return
	}

	event := map[string]interface{}{
		"chama_id":     txn.ChamaID,
		"kind":         string(txn.Kind),
		"amount":       txn.Amount.String(),
		"checkout_id":  txn.CheckoutID,
		"provider_ref": txn.ProviderRef,
		"audit_ref":    audit.ReferenceNo,
		"status":       string(txn.Status),
		"created_at":   time.Now().UTC().Format(time.RFC3339),
	}
	eventBytes, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal ledger event", "checkout_id", txn.CheckoutID, "error", err)
		return
	}

	go func() {
		retries := 3
		for i := 0; i < retries; i++ {
			if err := s.producer.Send(context.Background(), topicLedgerTransactions, txn.CheckoutID, eventBytes); err == nil {
				return
			}
			time.Sleep(time.Second * time.Duration(i+1))
		}
		slog.Error("failed to send ledger event after retries", "checkout_id", txn.CheckoutID)
	}()
}

func (s *ledgerService) GetBalance(ctx context.Context, chamaID int64) (decimal.Decimal, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "GetBalance")
	defer span.End()

	key := balanceKey(chamaID)
	if s.redisClient != nil {
		if cached, err := s.redisClient.Get(ctx, key); err == nil {
			if balance, parseErr := decimal.NewFromString(cached); parseErr == nil {
				slog.Info("balance fetched from Redis", "chama_id", chamaID, "balance", balance)
				return balance, nil
			}
		}
	}

	account, err := s.accounts.GetMainAccount(ctx, chamaID)
	if err != nil {
		slog.Error("failed to get balance", "chama_id", chamaID, "error", err)
		return decimal.Zero, err
	}

	if s.redisClient != nil {
		if err := s.redisClient.Set(ctx, key, account.Balance.String(), balanceCacheTTL); err != nil {
			slog.Error("failed to cache balance", "chama_id", chamaID, "error", err)
		}
	}

	return account.Balance, nil
}

func (s *ledgerService) GetTransactionHistory(ctx context.Context, chamaID int64, filter repository.TransactionFilter) ([]models.Transaction, decimal.Decimal, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "GetTransactionHistory")
	defer span.End()

	txns, err := s.transactions.ListByChama(ctx, chamaID, filter)
	if err != nil {
		slog.Error("failed to get transaction history", "chama_id", chamaID, "error", err)
		return nil, decimal.Zero, err
	}
	total, err := s.transactions.TotalByChama(ctx, chamaID, filter)
	if err != nil {
		slog.Error("failed to total transaction history", "chama_id", chamaID, "error", err)
		return nil, decimal.Zero, err
	}

	slog.Info("transaction history retrieved", "chama_id", chamaID, "count", len(txns), "total", total)
	return txns, total, nil
}

func (s *ledgerService) GetAuditTrail(ctx context.Context, chamaID int64) ([]models.AuditLog, error) {
	tracer := otel.Tracer("ledger-service")
	ctx, span := tracer.Start(ctx, "GetAuditTrail")
	defer span.End()

	entries, err := s.audits.ListByChama(ctx, chamaID)
	if err != nil {
		slog.Error("failed to get audit trail", "chama_id", chamaID, "error", err)
		return nil, err
	}
	return entries, nil
}

func balanceKey(chamaID int64) string {
	return fmt.Sprintf("chama:%d:balance", chamaID)
}

const refAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

func randomRef(prefix string, n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// entropy exhaustion is not survivable in any useful way
		panic(err)
	}
	for i := range buf {
		buf[i] = refAlphabet[int(buf[i])%len(refAlphabet)]
	}
	return prefix + string(buf)
}

// providerRef mimics a mobile-money receipt code. The database unique
// constraint is the real collision guard; a hit maps to
// ErrDuplicateReference and rolls the unit of work back.
func providerRef() string {
	return randomRef("SIM", 7)
}

func auditRef() string {
	return randomRef("AUD-", 10)
}
