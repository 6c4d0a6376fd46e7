package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/boardroom-dev/boardroom/pkg/ident"
)

// SQLiteLog is a persistent Log backed by a pure-Go SQLite file,
// proving out the swappable storage contract promised by §4.1: any
// driver implementing Log can stand in for MemoryLog without the rest
// of the system noticing.
//
// Subscribe is served in-process (the same fan-out as MemoryLog) since
// SQLite itself has no change-notification mechanism; state after
// restart is recovered purely from the table.
type SQLiteLog struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[ident.ConversationKey][]chan struct{}
}

var _ Log = (*SQLiteLog)(nil)

// OpenSQLiteLog opens (creating if needed) a SQLite-backed Log at path.
func OpenSQLiteLog(path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite log: %v", ident.ErrStorageUnavailable, err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		conversation_kind  INTEGER NOT NULL,
		conversation_id    TEXT NOT NULL,
		sequence           INTEGER NOT NULL,
		kind               INTEGER NOT NULL,
		from_agent         TEXT NOT NULL,
		to_address         TEXT NOT NULL,
		body               TEXT NOT NULL,
		tool_name          TEXT NOT NULL,
		tool_args          TEXT NOT NULL,
		tool_result        TEXT NOT NULL,
		tool_err           TEXT NOT NULL,
		ts_unix_nano       INTEGER NOT NULL,
		PRIMARY KEY (conversation_kind, conversation_id, sequence)
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: create events table: %v", ident.ErrIntegrityViolation, err)
	}

	return &SQLiteLog{db: db, subs: make(map[ident.ConversationKey][]chan struct{})}, nil
}

// Close releases the underlying database handle.
func (l *SQLiteLog) Close() error {
	return l.db.Close()
}

func conversationID(key ident.ConversationKey) string {
	switch key.Kind {
	case ident.ConversationDirect:
		return string(key.DirectLow) + ":" + string(key.DirectHigh)
	case ident.ConversationGroup:
		return string(key.Group)
	case ident.ConversationBroadcast:
		return string(key.BroadcastOrigin)
	default:
		return ""
	}
}

func (l *SQLiteLog) Append(ctx context.Context, ev Event) (uint64, error) {
	argsJSON, err := json.Marshal(ev.ToolArgs)
	if err != nil {
		return 0, fmt.Errorf("%w: marshal tool args: %v", ident.ErrBadArguments, err)
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: begin tx: %v", ident.ErrStorageUnavailable, err)
	}
	defer tx.Rollback()

	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM events WHERE conversation_kind = ? AND conversation_id = ?`,
		int(ev.Conversation.Kind), conversationID(ev.Conversation),
	).Scan(&maxSeq); err != nil {
		return 0, fmt.Errorf("%w: query max sequence: %v", ident.ErrStorageUnavailable, err)
	}

	seq := uint64(maxSeq.Int64) + 1

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO events
		(conversation_kind, conversation_id, sequence, kind, from_agent, to_address,
		 body, tool_name, tool_args, tool_result, tool_err, ts_unix_nano)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int(ev.Conversation.Kind), conversationID(ev.Conversation), seq, int(ev.Kind),
		string(ev.From), ev.To.String(), ev.Body, ev.ToolName, string(argsJSON),
		ev.ToolResult, ev.ToolErr, ev.Timestamp.UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: insert event: %v", ident.ErrStorageUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: commit append: %v", ident.ErrStorageUnavailable, err)
	}

	l.notify(ev.Conversation)
	return seq, nil
}

func (l *SQLiteLog) Range(ctx context.Context, key ident.ConversationKey, from, to uint64) ([]Event, error) {
	if from == 0 {
		from = 1
	}
	query := `SELECT sequence, kind, from_agent, to_address, body, tool_name, tool_args,
		tool_result, tool_err, ts_unix_nano FROM events
		WHERE conversation_kind = ? AND conversation_id = ? AND sequence >= ?`
	args := []any{int(key.Kind), conversationID(key), from}
	if to > 0 {
		query += ` AND sequence <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY sequence ASC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: range query: %v", ident.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	return scanEvents(rows, key)
}

func (l *SQLiteLog) Tail(ctx context.Context, key ident.ConversationKey, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := l.db.QueryContext(ctx, `SELECT sequence, kind, from_agent, to_address, body,
		tool_name, tool_args, tool_result, tool_err, ts_unix_nano FROM events
		WHERE conversation_kind = ? AND conversation_id = ?
		ORDER BY sequence DESC LIMIT ?`, int(key.Kind), conversationID(key), n)
	if err != nil {
		return nil, fmt.Errorf("%w: tail query: %v", ident.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	out, err := scanEvents(rows, key)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func scanEvents(rows *sql.Rows, key ident.ConversationKey) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var ev Event
		var kind int
		var from, toAddr, argsJSON string
		var tsNano int64
		if err := rows.Scan(&ev.Sequence, &kind, &from, &toAddr, &ev.Body, &ev.ToolName,
			&argsJSON, &ev.ToolResult, &ev.ToolErr, &tsNano); err != nil {
			return nil, fmt.Errorf("%w: scan event row: %v", ident.ErrIntegrityViolation, err)
		}
		ev.Conversation = key
		ev.Kind = EventKind(kind)
		ev.From = ident.AgentId(from)
		switch {
		case strings.HasPrefix(toAddr, "direct:"):
			ev.To = ident.Direct(ident.AgentId(strings.TrimPrefix(toAddr, "direct:")))
		case strings.HasPrefix(toAddr, "group:"):
			ev.To = ident.ToGroup(ident.GroupId(strings.TrimPrefix(toAddr, "group:")))
		case toAddr == "broadcast":
			ev.To = ident.Broadcast()
		}
		ev.Timestamp = time.Unix(0, tsNano)
		if argsJSON != "" && argsJSON != "null" {
			if err := json.Unmarshal([]byte(argsJSON), &ev.ToolArgs); err != nil {
				return nil, fmt.Errorf("%w: unmarshal tool args: %v", ident.ErrIntegrityViolation, err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: row iteration: %v", ident.ErrStorageUnavailable, err)
	}
	return out, nil
}

func (l *SQLiteLog) Subscribe(ctx context.Context, key ident.ConversationKey) <-chan struct{} {
	ch := make(chan struct{}, 1)

	l.mu.Lock()
	l.subs[key] = append(l.subs[key], ch)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.mu.Lock()
		defer l.mu.Unlock()
		chans := l.subs[key]
		for i, s := range chans {
			if s == ch {
				l.subs[key] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		close(ch)
	}()

	return ch
}

func (l *SQLiteLog) notify(key ident.ConversationKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ch := range l.subs[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
