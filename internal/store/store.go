package store

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/npezzotti/studychat/internal/types"
	"github.com/teris-io/shortid"
)

var ErrNotFound = errors.New("key not found")

const (
	keyToken       = "session/token"
	keyDisplayName = "session/display_name"
	keyClientId    = "session/client_id"
	keyRoom        = "ui/room"
	prefixPref     = "ui/pref/"
	prefixLikedMsg = "liked/msg/"
	prefixLikedRm  = "liked/room/"
)

// Store is the client's persistent key-value state. Writes are not
// coordinated across processes; the last write wins.
type Store struct {
	db  *pebble.DB
	log *log.Logger
}

// Open opens (or creates) the store in dir.
func Open(dir string, logger *log.Logger) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	logger.Printf("opened state store at %s", dir)
	return &Store{db: db, log: logger}, nil
}

// OpenInMemory opens a store that is discarded on Close.
func OpenInMemory(logger *log.Logger) (*Store, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}

	return &Store{db: db, log: logger}, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) Get(key string) (string, error) {
	value, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	defer closer.Close()

	return string(value), nil
}

func (s *Store) Set(key, value string) error {
	if err := s.db.Set([]byte(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *Store) getOptional(key string) (string, error) {
	v, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Token returns the saved session token, or "" if there is none.
func (s *Store) Token() (string, error) {
	return s.getOptional(keyToken)
}

func (s *Store) SetToken(token string) error {
	if token == "" {
		return s.Delete(keyToken)
	}
	return s.Set(keyToken, token)
}

func (s *Store) DisplayName() (string, error) {
	return s.getOptional(keyDisplayName)
}

func (s *Store) SetDisplayName(name string) error {
	return s.Set(keyDisplayName, name)
}

// ClientId returns the persisted client id, generating and saving one on
// first use.
func (s *Store) ClientId() (string, error) {
	id, err := s.getOptional(keyClientId)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id, err = shortid.Generate()
	if err != nil {
		return "", fmt.Errorf("generate client id: %w", err)
	}
	if err := s.Set(keyClientId, id); err != nil {
		return "", err
	}

	s.log.Printf("generated client id %s", id)
	return id, nil
}

// Room returns the last room the user had open, or "" if none.
func (s *Store) Room() (types.RoomKey, error) {
	v, err := s.getOptional(keyRoom)
	return types.RoomKey(v), err
}

func (s *Store) SetRoom(key types.RoomKey) error {
	return s.Set(keyRoom, key.String())
}

func (s *Store) setFlag(key string, on bool) error {
	if !on {
		return s.Delete(key)
	}
	return s.Set(key, "1")
}

func (s *Store) flag(key string) (bool, error) {
	v, err := s.getOptional(key)
	return v != "", err
}

func (s *Store) MessageLiked(id int64) (bool, error) {
	return s.flag(prefixLikedMsg + strconv.FormatInt(id, 10))
}

func (s *Store) SetMessageLiked(id int64, liked bool) error {
	return s.setFlag(prefixLikedMsg+strconv.FormatInt(id, 10), liked)
}

func (s *Store) RoomLiked(key types.RoomKey) (bool, error) {
	return s.flag(prefixLikedRm + key.String())
}

func (s *Store) SetRoomLiked(key types.RoomKey, liked bool) error {
	return s.setFlag(prefixLikedRm+key.String(), liked)
}

// Pref reports a UI preference toggle; unset preferences are false.
func (s *Store) Pref(name string) (bool, error) {
	return s.flag(prefixPref + name)
}

func (s *Store) SetPref(name string, on bool) error {
	return s.setFlag(prefixPref+name, on)
}
