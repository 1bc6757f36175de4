// Package vault implements the agent's encrypted on-disk credential store.
//
// Secrets are kept in a single YAML document mapping a UUID to a pair of
// encrypted fields (username, password). The master key never appears in
// the file; it is supplied out of band (REFLEX_AGENT_VAULT_SECRET) and used
// only to derive per-field keys via internal/crypto.
package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/reflexsoar/reflex-agent-go/internal/crypto"
)

// DefaultName is the vault file name used when none is configured.
const DefaultName = "reflexsoar-agent-vault.yml"

// entry is a single vault record: a username/password pair, encrypted at
// rest and decrypted in memory only on Get.
type entry struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Credential is the decrypted view of a vault entry returned by Get.
type Credential struct {
	Username string
	Password string
}

// Vault is an encrypted YAML credential store guarded by a mutex for
// in-process writers. No file lock is taken, so writes from separate
// processes are not serialized; each save rewrites the whole file from this
// instance's in-memory document.
type Vault struct {
	path       string
	masterKey  []byte
	iterations int
	emptyVault bool

	mu      sync.Mutex
	secrets map[string]entry
}

// Option configures a Vault at construction time.
type Option func(*Vault)

// WithIterations overrides the PBKDF2 iteration count (default 100,000).
func WithIterations(n int) Option {
	return func(v *Vault) { v.iterations = n }
}

// WithEmptyVault initializes an empty in-memory document instead of
// requiring the backing file to already exist.
func WithEmptyVault() Option {
	return func(v *Vault) { v.emptyVault = true }
}

// New opens (or initializes) the vault file at dir/name, deriving
// per-field keys from masterKey. Pass an empty name to use DefaultName.
func New(dir, name string, masterKey []byte, opts ...Option) (*Vault, error) {
	if name == "" {
		name = DefaultName
	}
	v := &Vault{
		path:       filepath.Join(dir, name),
		masterKey:  masterKey,
		iterations: crypto.DefaultIterations,
		secrets:    map[string]entry{},
	}
	for _, opt := range opts {
		opt(v)
	}
	if err := v.Load(); err != nil {
		return nil, err
	}
	return v, nil
}

// Load reads the vault file from disk, initializing it if absent.
func (v *Vault) Load() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loadLocked()
}

func (v *Vault) loadLocked() error {
	data, err := os.ReadFile(v.path)
	if err != nil {
		if os.IsNotExist(err) {
			return v.setupLocked()
		}
		return fmt.Errorf("vault: read %s: %w", v.path, err)
	}
	if len(data) == 0 {
		v.secrets = map[string]entry{}
		return nil
	}
	secrets := map[string]entry{}
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("vault: parse %s: %w", v.path, err)
	}
	v.secrets = secrets
	return nil
}

func (v *Vault) setupLocked() error {
	if v.emptyVault {
		v.secrets = map[string]entry{}
		return nil
	}
	v.secrets = map[string]entry{}
	return v.saveLocked()
}

// Refresh reloads the YAML document from disk, discarding any in-memory
// state not yet flushed via Save. Used to observe writes made by another
// process/worker.
func (v *Vault) Refresh() error {
	return v.Load()
}

// Save flushes the in-memory document to disk.
func (v *Vault) Save() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.saveLocked()
}

func (v *Vault) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(v.path), 0o700); err != nil {
		return fmt.Errorf("vault: mkdir: %w", err)
	}
	data, err := yaml.Marshal(v.secrets)
	if err != nil {
		return fmt.Errorf("vault: marshal: %w", err)
	}
	if err := os.WriteFile(v.path, data, 0o600); err != nil {
		return fmt.Errorf("vault: write %s: %w", v.path, err)
	}
	return nil
}

// Create encrypts and stores a new credential, returning its UUID.
func (v *Vault) Create(username, password string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	encUser, err := crypto.Encrypt(v.masterKey, username, v.iterations)
	if err != nil {
		return "", fmt.Errorf("vault: encrypt username: %w", err)
	}
	encPass, err := crypto.Encrypt(v.masterKey, password, v.iterations)
	if err != nil {
		return "", fmt.Errorf("vault: encrypt password: %w", err)
	}

	id := uuid.New().String()
	v.secrets[id] = entry{Username: encUser, Password: encPass}
	if err := v.saveLocked(); err != nil {
		return "", err
	}
	return id, nil
}

// Get decrypts and returns the credential for id, or nil if no such entry
// exists. Decryption failures surface as empty strings, not an error.
func (v *Vault) Get(id string) *Credential {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.secrets[id]
	if !ok {
		return nil
	}
	return &Credential{
		Username: crypto.Decrypt(v.masterKey, e.Username),
		Password: crypto.Decrypt(v.masterKey, e.Password),
	}
}

// Update overwrites the credential at id, creating it if absent.
func (v *Vault) Update(id, username, password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	encUser, err := crypto.Encrypt(v.masterKey, username, v.iterations)
	if err != nil {
		return fmt.Errorf("vault: encrypt username: %w", err)
	}
	encPass, err := crypto.Encrypt(v.masterKey, password, v.iterations)
	if err != nil {
		return fmt.Errorf("vault: encrypt password: %w", err)
	}
	v.secrets[id] = entry{Username: encUser, Password: encPass}
	return v.saveLocked()
}

// Delete removes the credential at id. When skipSave is true the removal
// is not flushed to disk immediately (the caller will batch a Save).
func (v *Vault) Delete(id string, skipSave bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.secrets, id)
	if skipSave {
		return nil
	}
	return v.saveLocked()
}
