package pool

import (
	"errors"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"prizevault/core/types"
	"prizevault/crypto"
	"prizevault/native/prizepool"
	"prizevault/storage"
)

// Singleton records live under hashed keys; iterable collections use plain
// prefixes so the backend can range-scan them.
var (
	poolKey       = ethcrypto.Keccak256([]byte("prizepool/pool"))
	drawKey       = ethcrypto.Keccak256([]byte("prizepool/draw"))
	entryPrefix   = []byte("prizepool/entry/")
	accountPrefix = []byte("prizepool/account/")
)

// Store persists pool state in a key-value database, RLP-encoded. It
// implements the engine's state interface.
type Store struct {
	db storage.Database
}

func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// storedEntry mirrors prizepool.Entry with RLP-encodable fields.
type storedEntry struct {
	Prefix    string
	Addr      [20]byte
	Deposit   *big.Int
	Withdrawn bool
}

func (s *Store) GetPool() (*prizepool.Pool, error) {
	data, err := s.db.Get(poolKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pool := new(prizepool.Pool)
	if err := rlp.DecodeBytes(data, pool); err != nil {
		return nil, fmt.Errorf("pool store: decode pool: %w", err)
	}
	return pool, nil
}

func (s *Store) PutPool(pool *prizepool.Pool) error {
	encoded, err := rlp.EncodeToBytes(pool)
	if err != nil {
		return fmt.Errorf("pool store: encode pool: %w", err)
	}
	return s.db.Put(poolKey, encoded)
}

func (s *Store) GetDraw() (*prizepool.Draw, error) {
	data, err := s.db.Get(drawKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	draw := new(prizepool.Draw)
	if err := rlp.DecodeBytes(data, draw); err != nil {
		return nil, fmt.Errorf("pool store: decode draw: %w", err)
	}
	return draw, nil
}

func (s *Store) PutDraw(draw *prizepool.Draw) error {
	encoded, err := rlp.EncodeToBytes(draw)
	if err != nil {
		return fmt.Errorf("pool store: encode draw: %w", err)
	}
	return s.db.Put(drawKey, encoded)
}

func (s *Store) GetEntry(addr crypto.Address) (*prizepool.Entry, error) {
	data, err := s.db.Get(entryKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry(data)
}

func (s *Store) PutEntry(entry *prizepool.Entry) error {
	if entry == nil {
		return nil
	}
	stored := &storedEntry{
		Prefix:    string(entry.Address.Prefix()),
		Deposit:   entry.Deposit,
		Withdrawn: entry.Withdrawn,
	}
	copy(stored.Addr[:], entry.Address.Bytes())
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return fmt.Errorf("pool store: encode entry: %w", err)
	}
	return s.db.Put(entryKey(entry.Address), encoded)
}

// ListEntries returns every persisted entry in key order.
func (s *Store) ListEntries() ([]*prizepool.Entry, error) {
	var out []*prizepool.Entry
	err := s.db.IteratePrefix(entryPrefix, func(_, value []byte) error {
		entry, err := decodeEntry(value)
		if err != nil {
			return err
		}
		out = append(out, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) GetAccount(addr crypto.Address) (*types.Account, error) {
	data, err := s.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, fmt.Errorf("pool store: decode account: %w", err)
	}
	return account, nil
}

func (s *Store) PutAccount(addr crypto.Address, account *types.Account) error {
	if account == nil {
		return nil
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return fmt.Errorf("pool store: encode account: %w", err)
	}
	return s.db.Put(accountKey(addr), encoded)
}

func decodeEntry(data []byte) (*prizepool.Entry, error) {
	stored := new(storedEntry)
	if err := rlp.DecodeBytes(data, stored); err != nil {
		return nil, fmt.Errorf("pool store: decode entry: %w", err)
	}
	deposit := stored.Deposit
	if deposit == nil {
		deposit = big.NewInt(0)
	}
	return &prizepool.Entry{
		Address:   crypto.NewAddress(crypto.AddressPrefix(stored.Prefix), stored.Addr[:]),
		Deposit:   deposit,
		Withdrawn: stored.Withdrawn,
	}, nil
}

func entryKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), entryPrefix...), addr.Bytes()...)
}

func accountKey(addr crypto.Address) []byte {
	return append(append([]byte(nil), accountPrefix...), addr.Bytes()...)
}
