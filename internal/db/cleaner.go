package db

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"
)

var shareLinkTables = []string{"note_tool.card_share_links", "note_tool.board_share_links"}

// StartShareLinkCleaner periodically drops the password hash of share links
// that were revoked or expired more than retention ago. The rows themselves
// stay so a dead token keeps resolving as Gone rather than NotFound. Usable
// links are never touched.
func StartShareLinkCleaner(
	ctx context.Context,
	db *sql.DB,
	interval time.Duration,
	retention time.Duration,
	log *zap.Logger,
) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-retention)
				for _, table := range shareLinkTables {
					res, err := db.ExecContext(ctx, `
                        UPDATE `+table+`
                           SET password_hash = NULL
                         WHERE password_hash IS NOT NULL
                           AND ((revoked_at IS NOT NULL AND revoked_at < $1)
                             OR (expires_at IS NOT NULL AND expires_at < $1))
                    `, cutoff)
					if err != nil {
						log.Error("failed to scrub stale share links", zap.String("table", table), zap.Error(err))
						continue
					}
					if rows, _ := res.RowsAffected(); rows > 0 {
						log.Info("scrubbed stale share links", zap.String("table", table), zap.Int64("scrubbed", rows))
					}
				}
			}
		}
	}()
}
