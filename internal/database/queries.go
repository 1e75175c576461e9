package database

// Message queries
const (
	insertMessageQuery = `
		INSERT INTO messages (
			chat_id, sender, destination, body, media_url,
			status, in_progress, attempt_count
		) VALUES (?, ?, ?, ?, ?, ?, 0, 0)
	`

	selectClaimableQuery = `
		SELECT id, chat_id, sender, destination, body, media_url,
			   status, in_progress, attempt_count, remote_message_id,
			   created_at, updated_at
		FROM messages
		WHERE status = 'approved' AND in_progress = 0 AND attempt_count < ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`

	// The claim is a single conditional write: the row must still be
	// approved and unclaimed at update time. One row affected means the
	// caller won the claim.
	tryClaimQuery = `
		UPDATE messages
		SET in_progress = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = 'approved' AND in_progress = 0
	`

	markSentQuery = `
		UPDATE messages
		SET status = 'sent', in_progress = 0, remote_message_id = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	// The caller's count is applied as a floor and the terminal
	// transition is derived from the effective value, so a worker holding
	// a stale snapshot can never move the attempt count backwards.
	markFailedAttemptQuery = `
		UPDATE messages
		SET attempt_count = MAX(attempt_count, ?),
		    status = CASE WHEN MAX(attempt_count, ?) >= ? THEN 'failed' ELSE 'approved' END,
		    in_progress = 0,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	// Replayed status updates apply the attempt count as a floor so a
	// stale item can never decrease it.
	applyStatusUpdateQuery = `
		UPDATE messages
		SET status = ?,
		    in_progress = 0,
		    attempt_count = CASE WHEN attempt_count > ? THEN attempt_count ELSE ? END,
		    remote_message_id = COALESCE(?, remote_message_id),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	selectMessageByIDQuery = `
		SELECT id, chat_id, sender, destination, body, media_url,
			   status, in_progress, attempt_count, remote_message_id,
			   created_at, updated_at
		FROM messages
		WHERE id = ?
	`

	selectMessagesQuery = `
		SELECT id, chat_id, sender, destination, body, media_url,
			   status, in_progress, attempt_count, remote_message_id,
			   created_at, updated_at
		FROM messages
		ORDER BY created_at DESC
		LIMIT ?
	`

	selectMessagesByStatusQuery = `
		SELECT id, chat_id, sender, destination, body, media_url,
			   status, in_progress, attempt_count, remote_message_id,
			   created_at, updated_at
		FROM messages
		WHERE status = ?
		ORDER BY created_at DESC
		LIMIT ?
	`
)

// Audit queries
const (
	insertAuditQuery = `
		INSERT INTO audit_log (message_id, event, detail)
		VALUES (?, ?, ?)
	`
)
