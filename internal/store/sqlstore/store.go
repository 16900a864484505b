// Package sqlstore backs the journal table with an embedded SQLite database.
// It reproduces the paging and conditional write semantics of the DynamoDB
// backend so that local runs and tests behave like production.
package sqlstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	sqlite "github.com/glebarez/sqlite"
	"github.com/radiojournal/backend/internal/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	errMissingPath      = errors.New("sqlstore: database path is required")
	errMissingDatabase  = errors.New("sqlstore: database handle is required")
	errInvalidTableName = errors.New("sqlstore: invalid table name")
	errUnsupportedIndex = errors.New("sqlstore: unsupported index")
	errMissingKey       = errors.New("sqlstore: item must carry pk and sk")

	tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Config describes an embedded table.
type Config struct {
	Path      string
	TableName string
	Logger    *zap.Logger
}

// Store implements store.Store on top of gorm.
type Store struct {
	db     *gorm.DB
	table  string
	logger *zap.Logger
}

type itemRow struct {
	PK       string  `gorm:"column:pk;primaryKey;not null"`
	SK       string  `gorm:"column:sk;primaryKey;not null"`
	GSI1PK   *string `gorm:"column:gsi1pk"`
	Document string  `gorm:"column:document;type:text;not null"`
}

// Open opens (or creates) the SQLite file at cfg.Path and prepares the table.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errMissingPath
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	s, err := New(db, cfg.TableName, cfg.Logger)
	if err != nil {
		return nil, err
	}
	s.logger.Info("database initialized", zap.String("path", cfg.Path), zap.String("table", cfg.TableName))
	return s, nil
}

// New binds a Store to table on an existing connection and migrates the schema.
// Transactions are only serialized when db is limited to a single open connection.
func New(db *gorm.DB, table string, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: %q", errInvalidTableName, table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{db: db, table: table, logger: logger}
	if err := s.EnsureTable(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// EnsureTable creates the item table and its secondary index when missing.
func (s *Store) EnsureTable(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.Table(s.table).AutoMigrate(&itemRow{}); err != nil {
		return fmt.Errorf("%w: migrate %s: %w", store.ErrUnavailable, s.table, err)
	}
	createIndex := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s ON %s (gsi1pk, sk);", s.table, store.IndexGSI1, s.table)
	if err := db.Exec(createIndex).Error; err != nil {
		return fmt.Errorf("%w: create index on %s: %w", store.ErrUnavailable, s.table, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, key store.Key, opts store.GetOptions) (store.Record, error) {
	doc, err := s.load(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, store.ErrNotFound
	}
	return newRecord(doc, opts.Projection), nil
}

func (s *Store) Put(ctx context.Context, put store.Put) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		return s.applyPut(tx, put)
	})
}

func (s *Store) Update(ctx context.Context, update store.Update) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		return s.applyUpdate(tx, update)
	})
}

func (s *Store) Transact(ctx context.Context, ops []store.WriteOp) error {
	return s.transaction(ctx, func(tx *gorm.DB) error {
		for index, op := range ops {
			var err error
			switch {
			case op.Put != nil:
				err = s.applyPut(tx, *op.Put)
			case op.Update != nil:
				err = s.applyUpdate(tx, *op.Update)
			default:
				err = fmt.Errorf("sqlstore: empty write operation at %d", index)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) Query(ctx context.Context, query store.Query) (store.Page, error) {
	partitionColumn := store.AttrPK
	switch query.Index {
	case "":
	case store.IndexGSI1:
		partitionColumn = store.AttrGSI1PK
	default:
		return store.Page{}, fmt.Errorf("%w: %q", errUnsupportedIndex, query.Index)
	}

	tx := s.db.WithContext(ctx).Table(s.table).Where(partitionColumn+" = ?", query.PartitionKey)
	if query.SortPrefix != "" {
		tx = tx.Where("sk >= ?", query.SortPrefix)
		if upper, ok := prefixUpperBound(query.SortPrefix); ok {
			tx = tx.Where("sk < ?", upper)
		}
	}
	if query.SortBetween != nil {
		tx = tx.Where("sk BETWEEN ? AND ?", query.SortBetween.Low, query.SortBetween.High)
	}
	if start := query.ExclusiveStartKey; start != nil {
		if query.Descending {
			tx = tx.Where("sk < ?", start.SK)
		} else {
			tx = tx.Where("sk > ?", start.SK)
		}
	}
	if query.Descending {
		tx = tx.Order("sk DESC")
	} else {
		tx = tx.Order("sk ASC")
	}
	if query.Limit > 0 {
		tx = tx.Limit(int(query.Limit))
	}

	var rows []itemRow
	if err := tx.Find(&rows).Error; err != nil {
		return store.Page{}, unavailable("query", err)
	}

	page := store.Page{Records: make([]store.Record, 0, len(rows))}
	if query.Limit > 0 && len(rows) == int(query.Limit) {
		last := rows[len(rows)-1]
		page.LastEvaluatedKey = &store.Key{PK: last.PK, SK: last.SK}
		if query.Index == store.IndexGSI1 && last.GSI1PK != nil {
			page.LastEvaluatedKey.GSI1PK = *last.GSI1PK
		}
	}

	for _, row := range rows {
		doc, err := decodeDocument(row.Document)
		if err != nil {
			return store.Page{}, err
		}
		matched, err := evaluate(doc, query.Filters)
		if err != nil {
			return store.Page{}, err
		}
		if !matched {
			continue
		}
		page.Records = append(page.Records, newRecord(doc, query.Projection))
	}
	return page, nil
}

func (s *Store) BatchGet(ctx context.Context, keys []store.Key, projection []string) ([]store.Record, error) {
	records := make([]store.Record, 0, len(keys))
	for start := 0; start < len(keys); start += store.MaxBatchKeys {
		end := start + store.MaxBatchKeys
		if end > len(keys) {
			end = len(keys)
		}
		pairs := make([][]any, 0, end-start)
		for _, key := range keys[start:end] {
			pairs = append(pairs, []any{key.PK, key.SK})
		}

		var rows []itemRow
		if err := s.db.WithContext(ctx).Table(s.table).Where("(pk, sk) IN ?", pairs).Find(&rows).Error; err != nil {
			return nil, unavailable("batch get", err)
		}
		for _, row := range rows {
			doc, err := decodeDocument(row.Document)
			if err != nil {
				return nil, err
			}
			records = append(records, newRecord(doc, projection))
		}
	}
	return records, nil
}

func (s *Store) transaction(ctx context.Context, apply func(tx *gorm.DB) error) error {
	err := s.db.WithContext(ctx).Transaction(apply)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrConditionFailed) || errors.Is(err, store.ErrUnavailable) {
		return err
	}
	return unavailable("transaction", err)
}

func (s *Store) applyPut(tx *gorm.DB, put store.Put) error {
	doc, err := normalizeDocument(put.Item)
	if err != nil {
		return err
	}
	key, err := keyOf(doc)
	if err != nil {
		return err
	}
	existing, err := s.load(tx, key)
	if err != nil {
		return err
	}
	if err := guard(existing, put.Conditions); err != nil {
		return err
	}
	return s.save(tx, doc)
}

func (s *Store) applyUpdate(tx *gorm.DB, update store.Update) error {
	existing, err := s.load(tx, update.Key)
	if err != nil {
		return err
	}
	if err := guard(existing, update.Conditions); err != nil {
		return err
	}

	doc := existing
	if doc == nil {
		doc = map[string]any{store.AttrPK: update.Key.PK, store.AttrSK: update.Key.SK}
	}
	for _, assignment := range update.Set {
		if assignment.Attr == store.AttrPK || assignment.Attr == store.AttrSK {
			return fmt.Errorf("sqlstore: cannot update key attribute %s", assignment.Attr)
		}
		value, err := normalizeValue(assignment.Value)
		if err != nil {
			return err
		}
		doc[assignment.Attr] = value
	}
	for _, increment := range update.Increment {
		current, err := numberOf(doc[increment.Attr])
		if err != nil {
			return fmt.Errorf("sqlstore: increment %s: %w", increment.Attr, err)
		}
		doc[increment.Attr] = json.Number(fmt.Sprintf("%d", current+increment.By))
	}
	return s.save(tx, doc)
}

func (s *Store) load(tx *gorm.DB, key store.Key) (map[string]any, error) {
	var rows []itemRow
	if err := tx.Table(s.table).Where("pk = ? AND sk = ?", key.PK, key.SK).Limit(1).Find(&rows).Error; err != nil {
		return nil, unavailable("get", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return decodeDocument(rows[0].Document)
}

func (s *Store) save(tx *gorm.DB, doc map[string]any) error {
	key, err := keyOf(doc)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("sqlstore: encode item: %w", err)
	}
	row := itemRow{PK: key.PK, SK: key.SK, Document: string(payload)}
	if gsi, ok := doc[store.AttrGSI1PK].(string); ok {
		row.GSI1PK = &gsi
	}
	err = tx.Table(s.table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: store.AttrPK}, {Name: store.AttrSK}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return unavailable("save", err)
	}
	return nil
}

func guard(doc map[string]any, conditions []store.Condition) error {
	matched, err := evaluate(doc, conditions)
	if err != nil {
		return err
	}
	if !matched {
		return store.ErrConditionFailed
	}
	return nil
}

// evaluate reports whether doc satisfies every condition. A nil doc is a missing item.
func evaluate(doc map[string]any, conditions []store.Condition) (bool, error) {
	for _, condition := range conditions {
		value, present := doc[condition.Attr]
		switch condition.Kind {
		case store.ConditionEquals:
			expected, err := normalizeValue(condition.Value)
			if err != nil {
				return false, err
			}
			if !present || !reflect.DeepEqual(value, expected) {
				return false, nil
			}
		case store.ConditionAbsent:
			if present && value != nil {
				return false, nil
			}
		case store.ConditionExists:
			if !present {
				return false, nil
			}
		case store.ConditionBeginsWith:
			prefix, _ := condition.Value.(string)
			text, ok := value.(string)
			if !ok || !strings.HasPrefix(text, prefix) {
				return false, nil
			}
		default:
			return false, fmt.Errorf("sqlstore: unsupported condition kind %d", condition.Kind)
		}
	}
	return true, nil
}

func keyOf(doc map[string]any) (store.Key, error) {
	pk, _ := doc[store.AttrPK].(string)
	sk, _ := doc[store.AttrSK].(string)
	if pk == "" || sk == "" {
		return store.Key{}, errMissingKey
	}
	return store.Key{PK: pk, SK: sk}, nil
}

func numberOf(value any) (int64, error) {
	switch typed := value.(type) {
	case nil:
		return 0, nil
	case json.Number:
		return typed.Int64()
	default:
		return 0, fmt.Errorf("value %v is not a number", value)
	}
}

// prefixUpperBound returns the smallest string greater than every string starting with prefix.
func prefixUpperBound(prefix string) (string, bool) {
	upper := []byte(prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] < 0xff {
			upper[i]++
			return string(upper[:i+1]), true
		}
	}
	return "", false
}

func normalizeDocument(item any) (map[string]any, error) {
	payload, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode item: %w", err)
	}
	return decodeDocument(string(payload))
}

func normalizeValue(value any) (any, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: encode value: %w", err)
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	var normalized any
	if err := decoder.Decode(&normalized); err != nil {
		return nil, fmt.Errorf("sqlstore: decode value: %w", err)
	}
	return normalized, nil
}

func decodeDocument(raw string) (map[string]any, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()
	var doc map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("sqlstore: decode item: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("sqlstore: decode item: not an object")
	}
	return doc, nil
}

func unavailable(action string, err error) error {
	return fmt.Errorf("%w: %s: %w", store.ErrUnavailable, action, err)
}

type record struct {
	doc map[string]any
}

func newRecord(doc map[string]any, projection []string) record {
	if len(projection) == 0 {
		return record{doc: doc}
	}
	projected := make(map[string]any, len(projection))
	for _, attr := range projection {
		if value, ok := doc[attr]; ok {
			projected[attr] = value
		}
	}
	return record{doc: projected}
}

func (r record) Decode(out any) error {
	payload, err := json.Marshal(r.doc)
	if err != nil {
		return fmt.Errorf("sqlstore: encode record: %w", err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("sqlstore: decode record: %w", err)
	}
	return nil
}
