package storage

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/navagetur/tokenseal/internal/crypto"
)

// Bucket names
var (
	ConfigBucket  = []byte("config")  // KDF iterations, timestamps, vault id - unencrypted
	IndexBucket   = []byte("index")   // Public token list for ls/status - unencrypted
	TokensBucket  = []byte("tokens")  // Encrypted token values
	PrivateBucket = []byte("private") // Encrypted password checksum
)

// Config keys
var (
	ConfigVersion  = []byte("version")
	ConfigCreated  = []byte("created")
	ConfigModified = []byte("modified")
	ConfigIters    = []byte("iterations")
	ConfigVaultID  = []byte("vault_id")
)

var ErrNotFound = errors.New("not found")

// Storage provides BBolt-based storage for tokenseal
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a vault database
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure for a new vault
func (s *Storage) Initialize(iterations uint32) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, IndexBucket, TokensBucket, PrivateBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte("1")); err != nil {
			return err
		}

		iters := make([]byte, 4)
		binary.BigEndian.PutUint32(iters, iterations)
		if err := config.Put(ConfigIters, iters); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the database has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// GetIterations retrieves the KDF iterations recorded at init
func (s *Storage) GetIterations() (uint32, error) {
	var iterations uint32
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		iters := config.Get(ConfigIters)
		if len(iters) != 4 {
			return fmt.Errorf("iterations not found")
		}
		iterations = binary.BigEndian.Uint32(iters)
		return nil
	})
	return iterations, err
}

func getTime(tx *bolt.Tx, key []byte) (time.Time, error) {
	var t time.Time
	config := tx.Bucket(ConfigBucket)
	if config == nil {
		return t, fmt.Errorf("config bucket not found")
	}
	data := config.Get(key)
	if data == nil {
		return t, fmt.Errorf("%s time not found", key)
	}
	err := t.UnmarshalBinary(data)
	return t, err
}

func touch(tx *bolt.Tx) error {
	modified, _ := time.Now().MarshalBinary()
	return tx.Bucket(ConfigBucket).Put(ConfigModified, modified)
}

// GetCreated retrieves the creation timestamp
func (s *Storage) GetCreated() (time.Time, error) {
	var created time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		created, err = getTime(tx, ConfigCreated)
		return err
	})
	return created, err
}

// GetModified retrieves the last modified timestamp
func (s *Storage) GetModified() (time.Time, error) {
	var modified time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		modified, err = getTime(tx, ConfigModified)
		return err
	})
	return modified, err
}

// GetVaultID retrieves the vault ID from config bucket
func (s *Storage) GetVaultID() (string, error) {
	var vaultID string
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return fmt.Errorf("config bucket not found")
		}
		data := config.Get(ConfigVaultID)
		if data == nil {
			return fmt.Errorf("vault_id %w", ErrNotFound)
		}
		vaultID = string(data)
		return nil
	})
	return vaultID, err
}

// GetOrCreateVaultID retrieves existing vault ID or generates a new one
func (s *Storage) GetOrCreateVaultID() (string, error) {
	vaultID, err := s.GetVaultID()
	if err == nil {
		return vaultID, nil
	}

	b, err := crypto.GenerateRandom(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate vault ID: %w", err)
	}
	vaultID = hex.EncodeToString(b)

	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(ConfigBucket).Put(ConfigVaultID, []byte(vaultID))
	})
	if err != nil {
		return "", err
	}

	return vaultID, nil
}

// PutToken stores an encrypted token and its index entry in one transaction
func (s *Storage) PutToken(entry Entry, token []byte) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(IndexBucket).Put([]byte(entry.Name), data); err != nil {
			return err
		}
		if err := tx.Bucket(TokensBucket).Put([]byte(entry.Name), token); err != nil {
			return err
		}
		return touch(tx)
	})
}

// GetToken retrieves an encrypted token
func (s *Storage) GetToken(name string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		tokens := tx.Bucket(TokensBucket)
		if tokens == nil {
			return fmt.Errorf("tokens bucket not found")
		}
		data = tokens.Get([]byte(name))
		if data == nil {
			return fmt.Errorf("token %s %w", name, ErrNotFound)
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), data...)
		return nil
	})
	return data, err
}

// DeleteToken removes a token and its index entry
func (s *Storage) DeleteToken(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(IndexBucket).Delete([]byte(name)); err != nil {
			return err
		}
		if err := tx.Bucket(TokensBucket).Delete([]byte(name)); err != nil {
			return err
		}
		return touch(tx)
	})
}

// GetEntries returns all index entries, ordered by name
func (s *Storage) GetEntries() ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index == nil {
			return fmt.Errorf("index bucket not found")
		}
		return index.ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// GetEntry returns a single index entry, or nil when absent
func (s *Storage) GetEntry(name string) (*Entry, error) {
	var entry *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket(IndexBucket)
		if index == nil {
			return fmt.Errorf("index bucket not found")
		}
		data := index.Get([]byte(name))
		if data == nil {
			return nil
		}
		entry = &Entry{}
		return json.Unmarshal(data, entry)
	})
	return entry, err
}

// ForEachToken calls fn for every stored token. The token slice is only
// valid during the call.
func (s *Storage) ForEachToken(fn func(name string, token []byte) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		tokens := tx.Bucket(TokensBucket)
		if tokens == nil {
			return fmt.Errorf("tokens bucket not found")
		}
		return tokens.ForEach(func(k, v []byte) error {
			return fn(string(k), v)
		})
	})
}

// ReplaceAll rewrites every token and the private checksum in a single
// transaction. Used when the key changes.
func (s *Storage) ReplaceAll(tokens map[string][]byte, checksum []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(TokensBucket)
		for name, token := range tokens {
			if bucket.Get([]byte(name)) == nil {
				return fmt.Errorf("token %s %w", name, ErrNotFound)
			}
			if err := bucket.Put([]byte(name), token); err != nil {
				return err
			}
		}
		if err := tx.Bucket(PrivateBucket).Put([]byte("checksum"), checksum); err != nil {
			return err
		}
		return touch(tx)
	})
}

// StoreMetadataBytes stores encrypted metadata bytes
func (s *Storage) StoreMetadataBytes(key string, encryptedData []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(PrivateBucket).Put([]byte(key), encryptedData)
	})
}

// GetMetadataBytes retrieves encrypted metadata bytes
func (s *Storage) GetMetadataBytes(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		private := tx.Bucket(PrivateBucket)
		if private == nil {
			return fmt.Errorf("private bucket not found")
		}
		data = private.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("metadata %w", ErrNotFound)
		}
		data = append([]byte(nil), data...)
		return nil
	})
	return data, err
}

// Compact creates a compacted copy of the database, removing unused space.
// This is useful after deleting tokens to reclaim disk space.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	if err := bolt.Compact(dst, s.db, 0); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}

	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	// Atomic replace
	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}

	return nil
}
