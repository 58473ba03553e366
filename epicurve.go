package pansim

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// EpicurveLogger is the sink every tick's combined epicurve row is
// written to, generalizing the teacher's DataLogger interface
// (logger.go) to PanSim's single per-tick record instead of the
// teacher's per-host status/transmission/genotype streams.
type EpicurveLogger interface {
	LogTick(tick int, counts []int64) error
	Close() error
}

// NewEpicurveLogger builds the logger named by cfg.EpicurveLoggerKind
// ("csv", "sqlite" or "mongo", set by EPICURVE_LOGGER or the scenario
// overlay's epicurve_logger key), defaulting to CSV.
func NewEpicurveLogger(cfg *Config, states []string) (EpicurveLogger, error) {
	switch cfg.EpicurveLoggerKind {
	case "", "csv":
		return NewCSVEpicurveLogger(cfg.OutputFile, states)
	case "sqlite":
		return NewSQLiteEpicurveLogger(cfg.OutputFile, states)
	case "mongo":
		return NewMongoEpicurveLogger(cfg.MongoURI, cfg.MongoDatabase, states)
	default:
		return nil, Newf(ConfigError, "unknown epicurve logger %q", cfg.EpicurveLoggerKind)
	}
}

// CSVEpicurveLogger appends one row per tick to a CSV file, following
// the teacher's CSVLogger (csv_logger.go): a header written once, then
// one comma-delimited line per record, flushed to disk immediately.
type CSVEpicurveLogger struct {
	f *os.File
	w *csv.Writer
}

// NewCSVEpicurveLogger creates (or truncates) path and writes the
// header row: a tick column followed by one column per disease state.
func NewCSVEpicurveLogger(path string, states []string) (*CSVEpicurveLogger, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, Wrapf(ConfigError, err, "creating epicurve output %q", path)
	}
	w := csv.NewWriter(f)
	header := append([]string{"tick"}, states...)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, Wrap(ConfigError, err, "writing epicurve header")
	}
	return &CSVEpicurveLogger{f: f, w: w}, nil
}

// LogTick appends one row.
func (l *CSVEpicurveLogger) LogTick(tick int, counts []int64) error {
	row := make([]string, 0, len(counts)+1)
	row = append(row, strconv.Itoa(tick))
	for _, c := range counts {
		row = append(row, strconv.FormatInt(c, 10))
	}
	if err := l.w.Write(row); err != nil {
		return Wrap(ConfigError, err, "writing epicurve row")
	}
	l.w.Flush()
	return l.w.Error()
}

// Close flushes and closes the underlying file.
func (l *CSVEpicurveLogger) Close() error {
	l.w.Flush()
	return l.f.Close()
}

// SQLiteEpicurveLogger writes one row per tick to a SQLite database,
// adapting the teacher's SQLiteLogger (sqlite_logger.go) pattern of a
// single table created at Init time and one prepared insert statement
// reused across writes.
type SQLiteEpicurveLogger struct {
	db     *sql.DB
	stmt   *sql.Stmt
	states []string
}

// NewSQLiteEpicurveLogger opens (creating if necessary) the database
// at path and creates the Epicurve table, one column per disease
// state plus tick.
func NewSQLiteEpicurveLogger(path string, states []string) (*SQLiteEpicurveLogger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, Wrapf(ConfigError, err, "opening epicurve database %q", path)
	}

	cols := "tick integer not null primary key"
	for _, s := range states {
		cols += fmt.Sprintf(", %s integer not null default 0", sqlIdent(s))
	}
	if _, err := db.Exec(fmt.Sprintf("drop table if exists epicurve; create table epicurve (%s);", cols)); err != nil {
		db.Close()
		return nil, Wrap(ConfigError, err, "creating epicurve table")
	}

	placeholders := "?"
	insertCols := "tick"
	for _, s := range states {
		insertCols += ", " + sqlIdent(s)
		placeholders += ", ?"
	}
	stmt, err := db.Prepare(fmt.Sprintf("insert into epicurve(%s) values(%s)", insertCols, placeholders))
	if err != nil {
		db.Close()
		return nil, Wrap(ConfigError, err, "preparing epicurve insert")
	}

	return &SQLiteEpicurveLogger{db: db, stmt: stmt, states: states}, nil
}

func sqlIdent(s string) string {
	return `"` + s + `"`
}

// LogTick inserts one row.
func (l *SQLiteEpicurveLogger) LogTick(tick int, counts []int64) error {
	args := make([]interface{}, 0, len(counts)+1)
	args = append(args, tick)
	for _, c := range counts {
		args = append(args, c)
	}
	if _, err := l.stmt.Exec(args...); err != nil {
		return Wrap(ConfigError, err, "inserting epicurve row")
	}
	return nil
}

// Close releases the prepared statement and database handle.
func (l *SQLiteEpicurveLogger) Close() error {
	l.stmt.Close()
	return l.db.Close()
}

// MongoEpicurveLogger writes one document per tick to a MongoDB
// collection, the optional richer sink SPEC_FULL section 2 adds
// alongside the teacher's file-based loggers, grounded in
// nicoberrocal-galaxyCore's use of go.mongodb.org/mongo-driver/v2.
type MongoEpicurveLogger struct {
	client     *mongo.Client
	collection *mongo.Collection
	states     []string
}

type epicurveDoc struct {
	Tick   int              `bson:"tick"`
	Counts map[string]int64 `bson:"counts"`
}

// NewMongoEpicurveLogger connects to uri and targets the "epicurve"
// collection in database.
func NewMongoEpicurveLogger(uri, database string, states []string) (*MongoEpicurveLogger, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, Wrapf(ConfigError, err, "connecting to mongo at %q", uri)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, Wrap(ConfigError, err, "pinging mongo")
	}

	return &MongoEpicurveLogger{
		client:     client,
		collection: client.Database(database).Collection("epicurve"),
		states:     states,
	}, nil
}

// LogTick inserts one document per tick, keyed by state name.
func (l *MongoEpicurveLogger) LogTick(tick int, counts []int64) error {
	doc := epicurveDoc{Tick: tick, Counts: make(map[string]int64, len(counts))}
	for i, c := range counts {
		if i < len(l.states) {
			doc.Counts[l.states[i]] = c
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := l.collection.InsertOne(ctx, doc); err != nil {
		return Wrap(ConfigError, err, "inserting epicurve document")
	}
	return nil
}

// Close disconnects the mongo client.
func (l *MongoEpicurveLogger) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return l.client.Disconnect(ctx)
}
