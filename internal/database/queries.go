package database

const (
	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (id, email, credit_balance, free_verification_units, discount_tier,
		                      lifetime_funded, referrer_account_id, version, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?)`

	queryGetAccount = `
		SELECT id, email, credit_balance, free_verification_units, discount_tier,
		       lifetime_funded, referrer_account_id, version, active, created_at, updated_at
		FROM accounts
		WHERE id = ?`

	queryGetAccountRow = `
		SELECT credit_balance, free_verification_units, lifetime_funded,
		       referrer_account_id, version, active
		FROM accounts
		WHERE id = ?`

	queryUpdateAccountBalance = `
		UPDATE accounts
		SET credit_balance = ?, lifetime_funded = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	queryConsumeFreeUnit = `
		UPDATE accounts
		SET free_verification_units = free_verification_units - 1, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ? AND free_verification_units > 0`

	queryGrantFreeUnits = `
		UPDATE accounts
		SET free_verification_units = free_verification_units + ?, version = version + 1, updated_at = ?
		WHERE id = ?`

	queryDeactivateAccount = `
		UPDATE accounts
		SET active = 0, version = version + 1, updated_at = ?
		WHERE id = ?`

	// Transaction queries
	queryInsertTransaction = `
		INSERT INTO transactions (id, account_id, amount, kind, reference_id, reason, balance_after, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetBalance = `
		SELECT credit_balance FROM accounts WHERE id = ?`

	querySumTransactions = `
		SELECT amount FROM transactions WHERE account_id = ?`

	// Payment event queries
	queryInsertPaymentEvent = `
		INSERT INTO payment_events (external_reference, account_id, gross_amount, currency,
		                            converted_credit_amount, status, created_at)
		VALUES (?, ?, ?, ?, '0', 'PENDING', ?)`

	queryGetPaymentEvent = `
		SELECT external_reference, account_id, gross_amount, currency,
		       converted_credit_amount, status, created_at, processed_at
		FROM payment_events
		WHERE external_reference = ?`

	queryApplyPaymentEvent = `
		UPDATE payment_events
		SET status = 'APPLIED', converted_credit_amount = ?, processed_at = ?
		WHERE external_reference = ? AND status = 'PENDING'`

	queryRejectPaymentEvent = `
		UPDATE payment_events
		SET status = 'REJECTED', processed_at = ?
		WHERE external_reference = ? AND status = 'PENDING'`

	// Verification queries
	queryInsertVerification = `
		INSERT INTO verifications (id, account_id, service_name, capability, cost, used_free_unit,
		                           phone_number, received_code, state, refunded, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, '', 'PENDING', 0, ?, ?)`

	queryGetVerification = `
		SELECT id, account_id, service_name, capability, cost, used_free_unit,
		       phone_number, received_code, state, refunded, created_at, expires_at
		FROM verifications
		WHERE id = ?`

	queryCompleteVerification = `
		UPDATE verifications
		SET state = 'COMPLETED', received_code = ?
		WHERE id = ? AND state = 'PENDING'`

	queryFinishVerification = `
		UPDATE verifications
		SET state = ?
		WHERE id = ? AND state = 'PENDING'`

	queryMarkVerificationRefunded = `
		UPDATE verifications
		SET refunded = 1
		WHERE id = ? AND refunded = 0`

	queryMarkTerminalVerificationRefunded = `
		UPDATE verifications
		SET refunded = 1
		WHERE id = ? AND refunded = 0 AND state IN ('EXPIRED', 'CANCELLED')`

	queryListDueVerifications = `
		SELECT id, account_id, service_name, capability, cost, used_free_unit,
		       phone_number, received_code, state, refunded, created_at, expires_at
		FROM verifications
		WHERE state = 'PENDING' AND expires_at <= ?
		ORDER BY expires_at
		LIMIT ?`

	// Rental queries
	queryInsertRental = `
		INSERT INTO rentals (id, account_id, scope, mode, phone_number, cost_paid_to_date,
		                     started_at, expires_at, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'ACTIVE', ?, ?)`

	queryGetRental = `
		SELECT id, account_id, scope, mode, phone_number, cost_paid_to_date,
		       started_at, expires_at, state, created_at, updated_at
		FROM rentals
		WHERE id = ?`

	queryExtendRental = `
		UPDATE rentals
		SET expires_at = ?, cost_paid_to_date = ?, updated_at = ?
		WHERE id = ? AND state = 'ACTIVE' AND cost_paid_to_date = ?`

	queryReleaseRental = `
		UPDATE rentals
		SET state = 'RELEASED', updated_at = ?
		WHERE id = ? AND state = 'ACTIVE' AND cost_paid_to_date = ?`

	queryExpireRental = `
		UPDATE rentals
		SET state = 'EXPIRED', updated_at = ?
		WHERE id = ? AND state = 'ACTIVE'`

	queryListDueRentals = `
		SELECT id, account_id, scope, mode, phone_number, cost_paid_to_date,
		       started_at, expires_at, state, created_at, updated_at
		FROM rentals
		WHERE state = 'ACTIVE' AND expires_at <= ?
		ORDER BY expires_at
		LIMIT ?`
)
