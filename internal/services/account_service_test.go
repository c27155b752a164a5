package services

import (
	"testing"

	"github.com/shopspring/decimal"

	"brokerage/internal/models"
	"brokerage/internal/pagination"
	"brokerage/internal/testutil"
)

func TestCreateAccount(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		account, err := svc.CreateAccount(user.ID, "Main", "USD", decimal.NewFromInt(1000))
		testutil.AssertNoError(t, err)

		if account.ID == 0 {
			t.Fatal("expected non-zero account ID")
		}
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(1000), account.Balance, "initial balance")
		if !account.IsActive {
			t.Error("expected account active")
		}
	})

	t.Run("default_currency", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		account, err := svc.CreateAccount(user.ID, "Main", "", decimal.Zero)
		testutil.AssertNoError(t, err)
		if account.Currency != "USD" {
			t.Errorf("expected USD default, got %s", account.Currency)
		}
	})

	t.Run("negative_deposit", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateAccount(user.ID, "Main", "USD", decimal.NewFromInt(-1))
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("missing_name", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)

		_, err := svc.CreateAccount(user.ID, "", "USD", decimal.Zero)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestGetUserAccounts(t *testing.T) {
	t.Run("only_own_active", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		testutil.CreateTestAccount(t, db, user.ID)
		inactive := testutil.CreateTestAccount(t, db, user.ID)
		db.Model(inactive).Update("is_active", false)
		testutil.CreateTestAccount(t, db, other.ID)

		result, err := svc.GetUserAccounts(user.ID, pagination.PageRequest{})
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 {
			t.Errorf("expected 1 active account, got %d", result.TotalItems)
		}
	})
}

func TestApplyBalanceDelta(t *testing.T) {
	t.Run("credit_and_debit", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, user.ID, decimal.NewFromInt(100))

		err := svc.ApplyBalanceDelta(db, account, decimal.NewFromInt(50))
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(150), account.Balance, "after credit")

		err = svc.ApplyBalanceDelta(db, account, decimal.NewFromInt(-150))
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, decimal.Zero, account.Balance, "debit to zero allowed")
	})

	t.Run("overdraft_rejected", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, user.ID, decimal.NewFromInt(100))

		err := svc.ApplyBalanceDelta(db, account, decimal.NewFromInt(-101))
		testutil.AssertAppError(t, err, "INSUFFICIENT_FUNDS")

		// Nothing written, in-memory balance untouched.
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(100), account.Balance, "in-memory balance")
		var account2 models.Account
		db.First(&account2, account.ID)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(100), account2.Balance, "persisted balance")
	})
}

func TestDepositWithdraw(t *testing.T) {
	t.Run("roundtrip", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)

		updated, err := svc.Deposit(user.ID, account.ID, decimal.NewFromInt(500))
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(500), updated.Balance, "after deposit")

		updated, err = svc.Withdraw(user.ID, account.ID, decimal.NewFromInt(200))
		testutil.AssertNoError(t, err)
		testutil.AssertDecimalEqual(t, decimal.NewFromInt(300), updated.Balance, "after withdrawal")
	})

	t.Run("overdraft", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccountWithBalance(t, db, user.ID, decimal.NewFromInt(100))

		_, err := svc.Withdraw(user.ID, account.ID, decimal.NewFromInt(200))
		testutil.AssertAppError(t, err, "INSUFFICIENT_FUNDS")
	})

	t.Run("non_positive_amount", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, user.ID)

		_, err := svc.Deposit(user.ID, account.ID, decimal.NewFromInt(-5))
		testutil.AssertAppError(t, err, "INVALID_INPUT")
		_, err = svc.Withdraw(user.ID, account.ID, decimal.Zero)
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("other_users_account", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		svc := NewAccountService(db)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		account := testutil.CreateTestAccount(t, db, other.ID)

		_, err := svc.Deposit(user.ID, account.ID, decimal.NewFromInt(100))
		testutil.AssertAppError(t, err, "ACCOUNT_NOT_FOUND")
	})
}
