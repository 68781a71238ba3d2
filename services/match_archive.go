// services/match_archive.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"stake-escrow/escrow"

	"github.com/gosimple/slug"
)

// ObjectPutter stores an object and returns its public URL.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// MatchArchive stores the off-chain record of a finished game. The
// reference it returns is recorded as the match's ipfs_hash.
type MatchArchive struct {
	Objects ObjectPutter
	Prefix  string
}

func NewMatchArchive(objects ObjectPutter) *MatchArchive {
	return &MatchArchive{Objects: objects, Prefix: "matches"}
}

var ErrEmptyGameData = errors.New("game data is empty")

// Archive uploads data and returns its content reference "sha256:<hex>".
func (a *MatchArchive) Archive(ctx context.Context, gameID uint64, winner escrow.Address, data json.RawMessage) (string, error) {
	if len(data) == 0 || string(data) == "null" {
		return "", ErrEmptyGameData
	}
	if !json.Valid(data) {
		return "", fmt.Errorf("game data is not valid JSON")
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])
	key := archiveKey(a.Prefix, gameID, winner, digest)

	url, err := a.Objects.PutObject(ctx, key, data, "application/json")
	if err != nil {
		return "", err
	}
	log.Printf("🗄️  [ARCHIVE] game %d record stored at %s", gameID, url)
	return "sha256:" + digest, nil
}

func archiveKey(prefix string, gameID uint64, winner escrow.Address, digest string) string {
	return fmt.Sprintf("%s/game-%d/%s-%s.json", prefix, gameID, slug.Make(winner.String()), digest[:16])
}
