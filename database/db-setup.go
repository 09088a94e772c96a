package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

// drivers a SQLStore can talk to
const (
	DRIVER_SQLSERVER = "sqlserver"
	DRIVER_MYSQL     = "mysql"
	DRIVER_SQLITE    = "sqlite3"
)

type DatabaseConfig struct {
	DatabaseName string
	ServerAddr   string
	Port         int
	Username     string
	Password     string
}

// DSN builds a connection string for driver. sqlite3 uses DatabaseName
// as the file path.
func (c DatabaseConfig) DSN(driver string) (string, error) {
	switch driver {
	case DRIVER_SQLSERVER:
		return fmt.Sprintf("server=%s;user id=%s;password=%s;port=%d;database=%s;",
			c.ServerAddr, c.Username, c.Password, c.Port, c.DatabaseName), nil
	case DRIVER_MYSQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s",
			c.Username, c.Password, c.ServerAddr, c.Port, c.DatabaseName), nil
	case DRIVER_SQLITE:
		return c.DatabaseName, nil
	}
	return "", fmt.Errorf("unsupported sql driver %q", driver)
}

// SQLStore keeps one graph per table with a row per vertex. Neighbors are
// stored as a dot-delimited list.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func OpenSQLStore(driver, dsn string) (*SQLStore, error) {
	switch driver {
	case DRIVER_SQLSERVER, DRIVER_MYSQL, DRIVER_SQLITE:
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		log.Error().Err(err).Str("driver", driver).Msg("OpenSQLStore: error creating connection pool")
		return nil, err
	}
	if driver == DRIVER_SQLITE {
		db.SetMaxOpenConns(1)
	}
	return &SQLStore{db: db, driver: driver}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// CreateTable creates the vertex table for graph if it does not exist.
func (s *SQLStore) CreateTable(ctx context.Context, graph string) error {
	table, err := tableName(graph)
	if err != nil {
		return err
	}

	var stmt string
	columns := "(srcVertex BIGINT NOT NULL PRIMARY KEY, hash VARCHAR(20) NOT NULL, " +
		"neighbors VARCHAR(8000) NOT NULL, weights VARCHAR(8000) NOT NULL)"
	if s.driver == DRIVER_SQLSERVER {
		stmt = fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s %s;", table, table, columns)
	} else {
		stmt = fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s;", table, columns)
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// AddGraph creates the table when needed and inserts vertices one batch
// per transaction.
func (s *SQLStore) AddGraph(ctx context.Context, graph string, vertices []Vertex) error {
	if err := s.CreateTable(ctx, graph); err != nil {
		return err
	}
	table, _ := tableName(graph)
	insert := fmt.Sprintf("INSERT INTO %s (srcVertex, hash, neighbors, weights) VALUES (%s);",
		table, s.placeholders(4))

	batches := CreateBatches(vertices)
	for b, batch := range batches {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, v := range batch {
			_, err = tx.ExecContext(ctx, insert,
				int64(v.ID), fmt.Sprint(v.Hash), joinEdges(v.Edges), joinWeights(v.Weights))
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("insert vertex %d: %w", v.ID, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Debug().Int("batch", b+1).Int("of", len(batches)).Str("table", table).Msg("SQLStore: uploaded")
	}
	log.Info().Int("vertices", len(vertices)).Str("table", table).Msg("SQLStore: graph added")
	return nil
}

// placeholders returns n bind parameters in the driver's syntax.
func (s *SQLStore) placeholders(n int) string {
	ps := ""
	for i := 1; i <= n; i++ {
		if i > 1 {
			ps += ", "
		}
		if s.driver == DRIVER_SQLSERVER {
			ps += fmt.Sprintf("@p%d", i)
		} else {
			ps += "?"
		}
	}
	return ps
}
