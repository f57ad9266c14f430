package database

// InitSchema creates all tables and indexes. Idempotent.
func (s *Service) InitSchema() error {
	schema := `
	-- Accounts (current state - hot data)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		credit_balance TEXT NOT NULL DEFAULT '0',
		free_verification_units INTEGER NOT NULL DEFAULT 0,
		discount_tier TEXT NOT NULL DEFAULT 'NONE',
		lifetime_funded TEXT NOT NULL DEFAULT '0',
		referrer_account_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);

	-- Transactions (append-only audit trail - cold data)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		kind TEXT NOT NULL,
		reference_id TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		balance_after TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_account_id ON transactions(account_id);
	CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_kind ON transactions(kind);
	CREATE INDEX IF NOT EXISTS idx_transactions_reference_id ON transactions(reference_id);

	-- Payment events (idempotency guard; primary key is the claim)
	CREATE TABLE IF NOT EXISTS payment_events (
		external_reference TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		gross_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		converted_credit_amount TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL DEFAULT 'PENDING',
		created_at TIMESTAMP NOT NULL,
		processed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payment_events_account_id ON payment_events(account_id);
	CREATE INDEX IF NOT EXISTS idx_payment_events_status ON payment_events(status);

	-- Verifications
	CREATE TABLE IF NOT EXISTS verifications (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		service_name TEXT NOT NULL,
		capability TEXT NOT NULL,
		cost TEXT NOT NULL DEFAULT '0',
		used_free_unit INTEGER NOT NULL DEFAULT 0,
		phone_number TEXT NOT NULL DEFAULT '',
		received_code TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT 'PENDING',
		refunded INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_verifications_account_id ON verifications(account_id);
	CREATE INDEX IF NOT EXISTS idx_verifications_due ON verifications(state, expires_at);

	-- Rentals
	CREATE TABLE IF NOT EXISTS rentals (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		mode TEXT NOT NULL,
		phone_number TEXT NOT NULL DEFAULT '',
		cost_paid_to_date TEXT NOT NULL DEFAULT '0',
		started_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL,
		state TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rentals_account_id ON rentals(account_id);
	CREATE INDEX IF NOT EXISTS idx_rentals_due ON rentals(state, expires_at);
	`

	_, err := s.db.Exec(schema)
	return err
}
