package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/dhcommerce/internal/model"
)

func TestWrapStoreError_ConnectionFailures_AreUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad conn", driver.ErrBadConn},
		{"conn done", sql.ErrConnDone},
		{"connection refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED)},
		{"net op error", &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route to host")}},
		{"deadline", context.DeadlineExceeded},
		{"pq connection exception", &pq.Error{Code: "08006"}},
		{"pq admin shutdown", &pq.Error{Code: "57P01"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapStoreError("取得に失敗しました", tt.err)
			if !errors.Is(err, model.ErrStoreUnavailable) {
				t.Errorf("expected ErrStoreUnavailable in %v", err)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("original error should be preserved in %v", err)
			}
		})
	}
}

func TestWrapStoreError_QueryFailures_AreNotUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"check violation", &pq.Error{Code: "23514"}},
		{"syntax error", &pq.Error{Code: "42601"}},
		{"plain error", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapStoreError("保存に失敗しました", tt.err)
			if errors.Is(err, model.ErrStoreUnavailable) {
				t.Errorf("did not expect ErrStoreUnavailable in %v", err)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique violation", &pq.Error{Code: "23505"}, true},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), true},
		{"check violation", &pq.Error{Code: "23514"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNullStringValue(t *testing.T) {
	if got := nullStringValue(sql.NullString{}); got != "" {
		t.Errorf("invalid NullString = %q, want empty", got)
	}
	if got := nullStringValue(sql.NullString{String: "2024-05-01", Valid: true}); got != "2024-05-01" {
		t.Errorf("valid NullString = %q", got)
	}
}

func TestAllergiesOrDefault(t *testing.T) {
	if got := allergiesOrDefault(nil); len(got) != 1 || got[0] != "none" {
		t.Errorf("allergiesOrDefault(nil) = %v, want [none]", got)
	}
	in := []string{"peanuts", "gluten"}
	if got := allergiesOrDefault(in); len(got) != 2 || got[1] != "gluten" {
		t.Errorf("allergiesOrDefault(%v) = %v", in, got)
	}
}

func TestPostgresRepos_ImplementInterfaces(t *testing.T) {
	var _ TransactionRepository = NewPostgresTransactionRepo(nil)
	var _ UserRepository = NewPostgresUserRepo(nil)
	var _ FoodRepository = NewPostgresFoodRepo(nil)
	var _ RatingRepository = NewPostgresRatingRepo(nil)
}

func TestPostgresTransactionRepo_UpdateFlags_ZeroFlagsIsNoop(t *testing.T) {
	// db が nil でもクエリを発行しないため panic しない
	repo := NewPostgresTransactionRepo(nil)
	if err := repo.UpdateFlags(context.Background(), "tx-1", model.TransactionFlags{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
