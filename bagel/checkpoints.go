package bagel

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// Checkpointer receives a PE's vertex states at the end of a round.
type Checkpointer interface {
	Checkpoint(pe PEID, round uint64, states map[VertexID]interface{}) error
}

// CheckpointStore keeps round snapshots in SQLite. States are gob encoded,
// so kernels register their state types with gob.Register.
type CheckpointStore struct {
	db *sql.DB
	mx sync.Mutex
}

func OpenCheckpointStore(path string) (*CheckpointStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		log.Error().Err(err).Str("path", path).Msg("OpenCheckpointStore: database error")
		return nil, err
	}
	// one connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	//goland:noinspection SqlDialectInspection
	const createCheckpoints string = `
	  CREATE TABLE IF NOT EXISTS checkpoints (
	  query TEXT NOT NULL,
	  pe INTEGER NOT NULL,
	  round INTEGER NOT NULL,
	  state BLOB NOT NULL,
	  PRIMARY KEY (query, pe, round)
	  );`
	if _, err := db.Exec(createCheckpoints); err != nil {
		log.Error().Err(err).Msg("OpenCheckpointStore: failed to create table")
		db.Close()
		return nil, err
	}
	return &CheckpointStore{db: db}, nil
}

// ForQuery returns a Checkpointer that files every snapshot under query.
func (s *CheckpointStore) ForQuery(query string) Checkpointer {
	return &queryCheckpoints{store: s, query: query}
}

type queryCheckpoints struct {
	store *CheckpointStore
	query string
}

func (q *queryCheckpoints) Checkpoint(pe PEID, round uint64, states map[VertexID]interface{}) error {
	return q.store.Store(q.query, pe, round, states)
}

func (s *CheckpointStore) Store(query string, pe PEID, round uint64, states map[VertexID]interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(states); err != nil {
		return fmt.Errorf("checkpoint encode: %w", err)
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO checkpoints VALUES(?,?,?,?)",
		query, int64(pe), int64(round), buf.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("checkpoint insert: %w", err)
	}
	log.Debug().
		Str("query", query).
		Uint32("pe", uint32(pe)).
		Uint64("round", round).
		Int("bytes", buf.Len()).
		Msg("checkpoint stored")
	return nil
}

func (s *CheckpointStore) Retrieve(query string, pe PEID, round uint64) (map[VertexID]interface{}, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	var buf []byte
	res := s.db.QueryRow(
		"SELECT state FROM checkpoints WHERE query=? AND pe=? AND round=?",
		query, int64(pe), int64(round),
	)
	if err := res.Scan(&buf); err != nil {
		return nil, err
	}

	var states map[VertexID]interface{}
	if err := gob.NewDecoder(bytes.NewBuffer(buf)).Decode(&states); err != nil {
		return nil, fmt.Errorf("checkpoint decode: %w", err)
	}
	return states, nil
}

// RetrieveRound merges the snapshots of every PE for one round.
func (s *CheckpointStore) RetrieveRound(query string, round uint64) (map[VertexID]interface{}, error) {
	s.mx.Lock()
	rows, err := s.db.Query(
		"SELECT state FROM checkpoints WHERE query=? AND round=?",
		query, int64(round),
	)
	if err != nil {
		s.mx.Unlock()
		return nil, err
	}
	var blobs [][]byte
	for rows.Next() {
		var buf []byte
		if err := rows.Scan(&buf); err != nil {
			rows.Close()
			s.mx.Unlock()
			return nil, err
		}
		blobs = append(blobs, buf)
	}
	err = rows.Err()
	rows.Close()
	s.mx.Unlock()
	if err != nil {
		return nil, err
	}
	if len(blobs) == 0 {
		return nil, sql.ErrNoRows
	}

	merged := make(map[VertexID]interface{})
	for _, buf := range blobs {
		var states map[VertexID]interface{}
		if err := gob.NewDecoder(bytes.NewBuffer(buf)).Decode(&states); err != nil {
			return nil, fmt.Errorf("checkpoint decode: %w", err)
		}
		for id, st := range states {
			merged[id] = st
		}
	}
	return merged, nil
}

// Rounds lists the checkpointed rounds of a query in ascending order.
func (s *CheckpointStore) Rounds(query string) ([]uint64, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	rows, err := s.db.Query(
		"SELECT DISTINCT round FROM checkpoints WHERE query=? ORDER BY round",
		query,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []uint64
	for rows.Next() {
		var r int64
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		rounds = append(rounds, uint64(r))
	}
	return rounds, rows.Err()
}

func (s *CheckpointStore) Reset(query string) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	_, err := s.db.Exec("DELETE FROM checkpoints WHERE query=?", query)
	return err
}

func (s *CheckpointStore) Close() error {
	return s.db.Close()
}
