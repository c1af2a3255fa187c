package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/magneticlabs/credits-backend/pkg/migrate"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}

	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestBalanceMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_credit_balances.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS credit_balances",
		"user_id UUID PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE",
		"CHECK (plan_credits >= 0)",
		"CHECK (subscription_credits >= 0)",
		"CHECK (bonus_credits >= 0)",
		"DROP TABLE IF EXISTS credit_balances",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_credit_transactions.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS credit_transactions",
		"type transaction_type NOT NULL",
		"CHECK (balance_after >= 0)",
		"idx_credit_transactions_user_created",
		"DROP TABLE IF EXISTS credit_transactions",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestWebhookEventsMigrationDeduplicates(t *testing.T) {
	content := readMigration(t, "*_create_webhook_events.sql")

	if !strings.Contains(content, "CREATE UNIQUE INDEX IF NOT EXISTS idx_webhook_events_provider_event ON webhook_events (provider, event_id)") {
		t.Error("missing unique (provider, event_id) index")
	}
}

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations dir: %v", err)
	}
}
