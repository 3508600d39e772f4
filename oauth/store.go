package oauth

import (
	"fmt"
	"os"

	"github.com/onnwee/stream-hub/crypto"
	"github.com/onnwee/stream-hub/event"
	"github.com/onnwee/stream-hub/persist"
)

// FileStore persists the credential map as one JSON document keyed by
// platform. Token values are encrypted at rest when an Encryptor is supplied.
type FileStore struct {
	path string
	enc  crypto.Encryptor
}

// NewFileStore creates a store at path. enc may be nil for plaintext storage
// (dev mode); set ENCRYPTION_KEY and pass an AESEncryptor in production.
func NewFileStore(path string, enc crypto.Encryptor) *FileStore {
	return &FileStore{path: path, enc: enc}
}

// storedCredential is the on-disk shape of one platform entry.
type storedCredential struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Expiry       string `json:"expiry"`
	Encrypted    bool   `json:"encrypted,omitempty"`
}

// Load reads the credential file. A missing file yields an empty map.
func (s *FileStore) Load() (map[event.Platform]Credential, error) {
	raw := make(map[event.Platform]storedCredential)
	if err := persist.ReadJSON(s.path, &raw); err != nil {
		if os.IsNotExist(err) {
			return make(map[event.Platform]Credential), nil
		}
		return nil, err
	}
	out := make(map[event.Platform]Credential, len(raw))
	for platform, sc := range raw {
		cred, err := s.decode(sc)
		if err != nil {
			return nil, fmt.Errorf("decode %s credential: %w", platform, err)
		}
		out[platform] = cred
	}
	return out, nil
}

// Save writes the full credential map atomically.
func (s *FileStore) Save(creds map[event.Platform]Credential) error {
	raw := make(map[event.Platform]storedCredential, len(creds))
	for platform, cred := range creds {
		sc, err := s.encode(cred)
		if err != nil {
			return fmt.Errorf("encode %s credential: %w", platform, err)
		}
		raw[platform] = sc
	}
	return persist.WriteJSONAtomic(s.path, raw)
}

func (s *FileStore) encode(cred Credential) (storedCredential, error) {
	sc := storedCredential{
		AccessToken:  cred.AccessToken,
		RefreshToken: cred.RefreshToken,
		Expiry:       cred.Expiry.UTC().Format(timeLayout),
	}
	if s.enc == nil {
		return sc, nil
	}
	var err error
	if sc.AccessToken, err = crypto.EncryptString(s.enc, sc.AccessToken); err != nil {
		return storedCredential{}, err
	}
	if sc.RefreshToken, err = crypto.EncryptString(s.enc, sc.RefreshToken); err != nil {
		return storedCredential{}, err
	}
	sc.Encrypted = true
	return sc, nil
}

func (s *FileStore) decode(sc storedCredential) (Credential, error) {
	cred := Credential{
		AccessToken:  sc.AccessToken,
		RefreshToken: sc.RefreshToken,
	}
	if sc.Expiry != "" {
		t, err := parseTime(sc.Expiry)
		if err != nil {
			return Credential{}, err
		}
		cred.Expiry = t
	}
	if sc.Encrypted {
		if s.enc == nil {
			return Credential{}, fmt.Errorf("credential is encrypted but no ENCRYPTION_KEY is configured")
		}
		var err error
		if cred.AccessToken, err = crypto.DecryptString(s.enc, cred.AccessToken); err != nil {
			return Credential{}, err
		}
		if cred.RefreshToken, err = crypto.DecryptString(s.enc, cred.RefreshToken); err != nil {
			return Credential{}, err
		}
	}
	return cred, nil
}
