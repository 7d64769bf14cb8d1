package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/GoPolymarket/guildgate/internal/model"
)

// canonicalEntry fixes the field order that is hashed. Changing it breaks
// every existing chain.
type canonicalEntry struct {
	ID           string `json:"id"`
	ChainID      string `json:"chainId"`
	Sequence     int64  `json:"sequence"`
	Timestamp    string `json:"timestamp"`
	ActorID      string `json:"actorId"`
	Action       string `json:"action"`
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
	IPAddress    string `json:"ipAddress"`
	UserAgent    string `json:"userAgent"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
	Metadata     string `json:"metadata"`
}

// Canonicalize serialises every field of e except the two hashes.
func Canonicalize(e *model.LedgerEntry) []byte {
	out, _ := json.Marshal(canonicalEntry{
		ID:           e.ID,
		ChainID:      e.ChainID,
		Sequence:     e.Sequence,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:      e.ActorID,
		Action:       e.Action,
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Status:       e.Status,
		ErrorMessage: e.ErrorMessage,
		Metadata:     e.Metadata,
	})
	return out
}

// ComputeHash returns hex(sha256(previousHash | canonical(e))). A genesis
// entry hashes an empty previous hash.
func ComputeHash(e *model.LedgerEntry) string {
	h := sha256.New()
	if e.PreviousHash != nil {
		h.Write([]byte(*e.PreviousHash))
	}
	h.Write([]byte{'|'})
	h.Write(Canonicalize(e))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalMetadata encodes metadata with sorted keys.
func canonicalMetadata(md map[string]any) (string, error) {
	if len(md) == 0 {
		return "{}", nil
	}
	out, err := json.Marshal(md)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
