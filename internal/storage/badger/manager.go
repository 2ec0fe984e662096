package badger

import (
	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fragor/internal/common"
	"github.com/ternarybob/fragor/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	crash  interfaces.CrashReportStorage
	kv     interfaces.KeyValueStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		crash:  NewCrashStorage(db, logger),
		kv:     NewKVStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// CrashReportStorage returns the crash report storage interface
func (m *Manager) CrashReportStorage() interfaces.CrashReportStorage {
	return m.crash
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// Store returns the underlying badgerhold store
func (m *Manager) Store() *badgerhold.Store {
	return m.db.Store()
}

// Badger returns the raw badger database
func (m *Manager) Badger() *badgerdb.DB {
	return m.db.Badger()
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
