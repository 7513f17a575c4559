package licensing

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	scriptIDChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
	scriptIDLength = 8

	MaxScriptNameLength        = 100
	MaxScriptDescriptionLength = 500

	defaultScriptDescription = "No description provided"
)

// Script is a catalogue entry for a distributed script. Downloads and
// Executions only ever grow.
type Script struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	CreatedAt   int64  `json:"created_at"`
	Downloads   int    `json:"downloads"`
	Executions  int    `json:"executions"`
}

type UploadParams struct {
	Name        string
	Description string
	Owner       string
}

// GenerateScriptID returns scriptIDLength random lowercase alphanumerics.
func GenerateScriptID() (string, error) {
	b := make([]byte, scriptIDLength)
	max := big.NewInt(int64(len(scriptIDChars)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = scriptIDChars[n.Int64()]
	}
	return string(b), nil
}

func (p UploadParams) validate() (UploadParams, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	if p.Name == "" {
		return p, fmt.Errorf("%w: name is required", ErrInvalidScript)
	}
	if utf8.RuneCountInString(p.Name) > MaxScriptNameLength {
		return p, fmt.Errorf("%w: name longer than %d characters", ErrInvalidScript, MaxScriptNameLength)
	}
	if utf8.RuneCountInString(p.Description) > MaxScriptDescriptionLength {
		return p, fmt.Errorf("%w: description longer than %d characters", ErrInvalidScript, MaxScriptDescriptionLength)
	}
	if p.Description == "" {
		p.Description = defaultScriptDescription
	}
	return p, nil
}

func (s *Keystore) UploadScript(ctx context.Context, p UploadParams) (Script, error) {
	p, err := p.validate()
	if err != nil {
		return Script{}, err
	}

	var sc Script
	err = s.repo.Write(ctx, func(st State) error {
		for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
			id, err := s.newScriptID()
			if err != nil {
				return fmt.Errorf("generate script id: %w", err)
			}
			sc = Script{
				ID:          id,
				Name:        p.Name,
				Description: p.Description,
				Owner:       p.Owner,
				CreatedAt:   s.now().Unix(),
			}
			err = st.InsertScript(sc)
			if errors.Is(err, ErrDuplicateKey) {
				continue
			}
			return err
		}
		return ErrDuplicateKey
	})
	if err != nil {
		return Script{}, s.fault(err)
	}
	return sc, nil
}

// ListScripts returns the catalogue, newest first.
func (s *Keystore) ListScripts(ctx context.Context) ([]Script, error) {
	var scripts []Script
	err := s.repo.Read(ctx, func(st State) error {
		var err error
		scripts, err = st.Scripts()
		return err
	})
	if err != nil {
		return nil, s.fault(err)
	}
	sort.Slice(scripts, func(i, j int) bool {
		if scripts[i].CreatedAt != scripts[j].CreatedAt {
			return scripts[i].CreatedAt > scripts[j].CreatedAt
		}
		return scripts[i].ID < scripts[j].ID
	})
	return scripts, nil
}

// DownloadScript returns the entry with its download counter bumped.
func (s *Keystore) DownloadScript(ctx context.Context, id string) (Script, error) {
	return s.bumpScript(ctx, id, func(sc *Script) { sc.Downloads++ })
}

// RecordExecution bumps the execution counter of id.
func (s *Keystore) RecordExecution(ctx context.Context, id string) (Script, error) {
	return s.bumpScript(ctx, id, func(sc *Script) { sc.Executions++ })
}

func (s *Keystore) bumpScript(ctx context.Context, id string, bump func(*Script)) (Script, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Script{}, ErrScriptNotFound
	}

	unlock := s.locks.Lock("script:" + id)
	defer unlock()

	var sc Script
	err := s.repo.Write(ctx, func(st State) error {
		var ok bool
		var err error
		sc, ok, err = st.Script(id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrScriptNotFound
		}
		bump(&sc)
		return st.UpdateScript(sc)
	})
	if err != nil {
		return Script{}, s.fault(err)
	}
	return sc, nil
}
