package txn

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNestedScope is returned when Begin is called on a context that
	// already carries a live scope. Nested units of work are not supported;
	// callers compose inside a single scope instead.
	ErrNestedScope = errors.New("transaction_scope_already_open")
	// ErrScopeClosed is returned when Commit or Rollback is called on a
	// scope that has already been closed.
	ErrScopeClosed = errors.New("transaction_scope_closed")
)

// Scope is a single unit of work bound to one database transaction. It lives
// on one execution context only and never outlives the operation that opened
// it.
type Scope struct {
	mu   sync.Mutex
	tx   *gorm.DB
	done bool
}

// Commit closes the scope, making all mutations since Begin visible. The
// scope is torn down whether or not the commit succeeds.
func (s *Scope) Commit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrScopeClosed
	}
	s.done = true
	if err := s.tx.Commit().Error; err != nil {
		return fmt.Errorf("commit transaction scope: %w", err)
	}
	return nil
}

// Rollback closes the scope, discarding all mutations since Begin.
func (s *Scope) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrScopeClosed
	}
	s.done = true
	if err := s.tx.Rollback().Error; err != nil {
		return fmt.Errorf("rollback transaction scope: %w", err)
	}
	return nil
}

func (s *Scope) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

type scopeKey struct{}

// Coordinator opens transaction scopes over the shared database handle.
type Coordinator struct {
	db  *gorm.DB
	log *zap.Logger
}

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewCoordinator(p Params) *Coordinator {
	return &Coordinator{
		db:  p.DB,
		log: p.Log.Named("txn.coordinator"),
	}
}

// Begin opens a new scope and returns a derived context carrying it. Every
// repository call made with the returned context runs on the scope's bound
// connection. Begin fails with ErrNestedScope if ctx already carries a live
// scope.
func (c *Coordinator) Begin(ctx context.Context) (context.Context, *Scope, error) {
	if existing := scopeFromContext(ctx); existing != nil && !existing.closed() {
		return ctx, nil, ErrNestedScope
	}

	tx := c.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return ctx, nil, fmt.Errorf("begin transaction scope: %w", tx.Error)
	}

	scope := &Scope{tx: tx}
	return context.WithValue(ctx, scopeKey{}, scope), scope, nil
}

// RunInTransaction begins a scope, runs work inside it, and commits on
// success. On any failure from work the scope is rolled back and the original
// error is returned; a rollback failure is joined to it, never dropped.
func (c *Coordinator) RunInTransaction(ctx context.Context, work func(ctx context.Context) error) error {
	scopedCtx, scope, err := c.Begin(ctx)
	if err != nil {
		return err
	}

	if err := work(scopedCtx); err != nil {
		if rbErr := scope.Rollback(); rbErr != nil {
			c.log.Error("rollback failed while unwinding",
				zap.Error(rbErr),
				zap.NamedError("cause", err),
			)
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}

	return scope.Commit()
}

// Handle returns the connection bound to the context's live scope, or base
// when no scope is open. Repositories route every statement through this so
// work under Begin stays invisible outside the scope until commit.
func Handle(ctx context.Context, base *gorm.DB) *gorm.DB {
	if scope := scopeFromContext(ctx); scope != nil && !scope.closed() {
		return scope.tx
	}
	return base
}

// InScope reports whether ctx carries a live scope.
func InScope(ctx context.Context) bool {
	scope := scopeFromContext(ctx)
	return scope != nil && !scope.closed()
}

func scopeFromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(scopeKey{}).(*Scope)
	return scope
}
