// Package devengine is an in-process Confidential Value Service for local runs
// and tests. Values are unsigned 128-bit integers sealed with ChaCha20-Poly1305
// under a process key; handles are random identifiers into an in-memory table.
//
// It reproduces the contract the locker relies on (fresh handles from Combine,
// per-handle decryption lists, all-or-nothing calls) and nothing more. It is not
// a confidential computing system.
package devengine

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"

	"privylocker/internal/confidential"
	"privylocker/pkg/domain"
)

var (
	ErrUnknownHandle       = errors.New("unknown handle")
	ErrNotHandleOwner      = errors.New("signer does not own handle")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
	ErrAccessDenied        = errors.New("principal may not decrypt handle")
)

var additionalData = []byte("privylocker/devengine/u128")

// Value is an unsigned 128-bit integer.
type Value struct {
	Hi, Lo uint64
}

// ValueOf widens v.
func ValueOf(v uint64) Value { return Value{Lo: v} }

// Add returns a+b mod 2^128.
func (a Value) Add(b Value) Value {
	lo, carry := bits.Add64(a.Lo, b.Lo, 0)
	hi, _ := bits.Add64(a.Hi, b.Hi, carry)
	return Value{Hi: hi, Lo: lo}
}

func (a Value) bytes() []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[:8], a.Lo)
	binary.LittleEndian.PutUint64(out[8:], a.Hi)
	return out
}

func valueFromBytes(b []byte) Value {
	return Value{Lo: binary.LittleEndian.Uint64(b[:8]), Hi: binary.LittleEndian.Uint64(b[8:])}
}

type entry struct {
	value   Value
	owner   domain.Principal
	readers map[domain.Principal]struct{}
}

// Engine implements confidential.Service.
type Engine struct {
	aead cipher.AEAD

	mu      sync.RWMutex
	handles map[confidential.Handle]*entry
}

var _ confidential.Service = (*Engine)(nil)

// New builds an engine sealing values under key (chacha20poly1305.KeySize bytes).
func New(key []byte) (*Engine, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("init dev engine cipher: %w", err)
	}
	return &Engine{
		aead: aead,
		handles: map[confidential.Handle]*entry{
			confidential.Zero: {value: Value{}},
		},
	}, nil
}

// NewRandom builds an engine with a fresh random key.
func NewRandom() (*Engine, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate dev engine key: %w", err)
	}
	return New(key)
}

// Encrypt seals v into ciphertext accepted by CreateHandle.
func (e *Engine) Encrypt(v Value) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+16+e.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, v.bytes(), additionalData), nil
}

func (e *Engine) open(ciphertext []byte) (Value, error) {
	ns := e.aead.NonceSize()
	if len(ciphertext) < ns+e.aead.Overhead() {
		return Value{}, ErrMalformedCiphertext
	}
	plain, err := e.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], additionalData)
	if err != nil || len(plain) != 16 {
		return Value{}, ErrMalformedCiphertext
	}
	return valueFromBytes(plain), nil
}

func (e *Engine) CreateHandle(ctx context.Context, ciphertext []byte, signer domain.Principal) (confidential.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	v, err := e.open(ciphertext)
	if err != nil {
		return "", err
	}
	return e.store(v, signer)
}

func (e *Engine) Combine(ctx context.Context, a, b confidential.Handle, signer domain.Principal) (confidential.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.RLock()
	ea, okA := e.handles[a]
	eb, okB := e.handles[b]
	var sum Value
	if okA && okB {
		sum = ea.value.Add(eb.value)
	}
	e.mu.RUnlock()

	if !okA || !okB {
		return "", ErrUnknownHandle
	}
	if !ea.usableBy(signer) || !eb.usableBy(signer) {
		return "", ErrNotHandleOwner
	}
	return e.store(sum, signer)
}

func (e *Engine) GrantAccess(ctx context.Context, h confidential.Handle, principal, signer domain.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	en, err := e.ownedLocked(h, signer)
	if err != nil {
		return err
	}
	en.readers[principal] = struct{}{}
	return nil
}

func (e *Engine) RevokeAccess(ctx context.Context, h confidential.Handle, principal, signer domain.Principal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	en, err := e.ownedLocked(h, signer)
	if err != nil {
		return err
	}
	delete(en.readers, principal)
	return nil
}

// Decrypt reveals the value behind h to principal if its decryption right is held.
func (e *Engine) Decrypt(ctx context.Context, h confidential.Handle, principal domain.Principal) (Value, error) {
	if err := ctx.Err(); err != nil {
		return Value{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	en, ok := e.handles[h]
	if !ok {
		return Value{}, ErrUnknownHandle
	}
	if _, ok := en.readers[principal]; !ok {
		return Value{}, ErrAccessDenied
	}
	return en.value, nil
}

// CanDecrypt reports whether principal currently holds the decryption right on h.
func (e *Engine) CanDecrypt(h confidential.Handle, principal domain.Principal) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	en, ok := e.handles[h]
	if !ok {
		return false
	}
	_, ok = en.readers[principal]
	return ok
}

func (e *Engine) store(v Value, owner domain.Principal) (confidential.Handle, error) {
	id := make([]byte, 16)
	if _, err := rand.Read(id); err != nil {
		return "", fmt.Errorf("generate handle: %w", err)
	}
	h := confidential.Handle(hex.EncodeToString(id))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.handles[h] = &entry{value: v, owner: owner, readers: map[domain.Principal]struct{}{}}
	return h, nil
}

func (e *Engine) ownedLocked(h confidential.Handle, signer domain.Principal) (*entry, error) {
	en, ok := e.handles[h]
	if !ok || h == confidential.Zero {
		return nil, ErrUnknownHandle
	}
	if en.owner != signer {
		return nil, ErrNotHandleOwner
	}
	return en, nil
}

// usableBy: the zero constant is public, every other handle only to its owner.
func (en *entry) usableBy(signer domain.Principal) bool {
	return en.owner == "" || en.owner == signer
}
