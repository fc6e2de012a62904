// Package store persists the agent's single AgentState blob and its next
// scheduled tick time to sqlite: initTables on open, one row for the state
// blob, one for the alarm, migration-on-load for missing fields.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"meridian/config"
	"meridian/domain"
)

const stateKey = "state"

// Store is the sqlite-backed persistence layer for one AgentState.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its tables exist.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers
	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init tables: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initTables() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS agent_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alarm (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			next_tick DATETIME
		)
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS alert_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// Load reads the persisted AgentState, substituting defaults for any
// missing/null/NaN field and recomputing the DEX peak balance from the
// paper balance when absent. If no row exists yet, returns a freshly
// defaulted state for first boot.
func (s *Store) Load(defaultCfg config.Config) (*domain.AgentState, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM agent_state WHERE key = ?`, stateKey).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.NewAgentState(defaultCfg), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	state := domain.AgentState{Config: defaultCfg} // absent or null config keys keep their defaults
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		// Corrupt blob: rather than lose the agent permanently, fall back to
		// a fresh state and let the operator notice via logs.
		return domain.NewAgentState(defaultCfg), nil
	}
	migrate(&state, defaultCfg)
	return &state, nil
}

// migrate fills in missing/zero-value/NaN fields with defaults. Config
// fields are reconciled individually rather than wholesale-replaced so a
// partially-configured older state keeps whatever it already had.
func migrate(state *domain.AgentState, defaultCfg config.Config) {
	state.Config = config.Sanitize(state.Config)

	if state.PositionEntries == nil {
		state.PositionEntries = map[string]domain.PositionEntry{}
	}
	if state.SocialHistory == nil {
		state.SocialHistory = map[string][]domain.SocialSample{}
	}
	if state.SignalResearch == nil {
		state.SignalResearch = map[string]domain.ResearchResult{}
	}
	if state.PositionResearch == nil {
		state.PositionResearch = map[string]domain.ResearchResult{}
	}
	if state.StalenessAnalysis == nil {
		state.StalenessAnalysis = map[string]domain.StalenessResult{}
	}
	if state.TwitterConfirmations == nil {
		state.TwitterConfirmations = map[string]domain.TwitterConfirmation{}
	}
	if state.TwitterDailyReset.IsZero() {
		state.TwitterDailyReset = time.Now()
	}
	if state.DexPositions == nil {
		state.DexPositions = map[string]domain.DexPosition{}
	}
	if state.DexTradeHistory == nil {
		state.DexTradeHistory = []domain.DexTradeRecord{}
	}
	if state.DexStopLossCooldowns == nil {
		state.DexStopLossCooldowns = map[string]domain.StopLossCooldown{}
	}
	if invalidFloat(state.DexPaperBalanceSol) || state.DexPaperBalanceSol <= 0 {
		state.DexPaperBalanceSol = state.Config.DexStartingBalanceSol
	}
	if invalidFloat(state.DexPeakBalance) || state.DexPeakBalance <= 0 {
		state.DexPeakBalance = state.DexPaperBalanceSol
	}
	if invalidFloat(state.DexPeakValue) || state.DexPeakValue <= 0 {
		state.DexPeakValue = state.DexPaperBalanceSol
	}
	if state.CrisisState.LastLevelChange.IsZero() {
		state.CrisisState.LastLevelChange = time.Now()
	}
	if state.Logs == nil {
		state.Logs = []domain.LogEntry{}
	}
}

func invalidFloat(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

// Save persists the current AgentState and the next scheduled alarm time.
func (s *Store) Save(state *domain.AgentState, nextTick time.Time) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if _, err := s.db.Exec(`
		INSERT INTO agent_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, stateKey, string(raw)); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return s.SetAlarm(nextTick)
}

// SetAlarm durably records the next scheduled tick time, or clears it when
// nextTick is the zero value (disable/kill).
func (s *Store) SetAlarm(nextTick time.Time) error {
	var v any
	if !nextTick.IsZero() {
		v = nextTick
	}
	_, err := s.db.Exec(`
		INSERT INTO alarm (id, next_tick) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET next_tick = excluded.next_tick
	`, v)
	return err
}

// ClearAlarm deletes the scheduled alarm.
func (s *Store) ClearAlarm() error {
	return s.SetAlarm(time.Time{})
}

// Alarm returns the next scheduled tick time, or the zero value if none is
// set.
func (s *Store) Alarm() (time.Time, error) {
	var next sql.NullTime
	err := s.db.QueryRow(`SELECT next_tick FROM alarm WHERE id = 1`).Scan(&next)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	if !next.Valid {
		return time.Time{}, nil
	}
	return next.Time, nil
}

// AppendAlert records an alarm/crisis-escalation event in a durable log,
// separate from the in-memory ring buffer AgentState.Logs carries.
func (s *Store) AppendAlert(level, message string) error {
	_, err := s.db.Exec(`INSERT INTO alert_log (level, message) VALUES (?, ?)`, level, message)
	return err
}
