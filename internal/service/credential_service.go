package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/GoPolymarket/guildgate/internal/model"
	"github.com/GoPolymarket/guildgate/internal/tenancy"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrCredentialNotFound = errors.New("credential not found")

// CredentialService stores community integration secrets. The plaintext
// secret is hashed on the way in and never returned.
type CredentialService struct {
	db *gorm.DB
}

func NewCredentialService(db *gorm.DB) *CredentialService {
	return &CredentialService{db: db}
}

func (s *CredentialService) Create(ctx context.Context, req model.CreateCredentialRequest) (*model.Credential, error) {
	tc, err := tenancy.Current(ctx)
	if err != nil {
		return nil, err
	}
	scope, err := tenancy.NewScope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	secret := strings.TrimSpace(req.Secret)
	cred := &model.Credential{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(req.Name),
		Provider:   strings.TrimSpace(req.Provider),
		SecretHash: HashSecret(secret),
		SecretHint: MaskSecret(secret),
		CreatedBy:  tc.UserID,
	}
	if err := scope.Create(ctx, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (s *CredentialService) List(ctx context.Context) ([]model.Credential, error) {
	scope, err := tenancy.NewScope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	creds := make([]model.Credential, 0)
	err = scope.Find(ctx, &creds, tenancy.Filter{Order: "created_at ASC"})
	return creds, err
}

// Delete removes the credential and returns it as it was.
func (s *CredentialService) Delete(ctx context.Context, id string) (*model.Credential, error) {
	scope, err := tenancy.NewScope(ctx, s.db)
	if err != nil {
		return nil, err
	}
	var deleted *model.Credential
	err = scope.Transaction(ctx, func(tx *tenancy.Scope) error {
		var cred model.Credential
		err := tx.First(ctx, &cred, tenancy.Filter{Where: map[string]any{"id": id}})
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCredentialNotFound
		}
		if err != nil {
			return err
		}
		if _, err := tx.Delete(ctx, &model.Credential{}, tenancy.Filter{Where: map[string]any{"id": id}}); err != nil {
			return err
		}
		deleted = &cred
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func MaskSecret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}
